package inspector

import "github.com/BradenHooton/rampart/internal/models"

// DefaultWAFRules is the first-match request signature set
func DefaultWAFRules() []models.SignatureRule {
	return []models.SignatureRule{
		{Pattern: `<\s*script\b`, Category: "xss", Weight: 1},
		{Pattern: `onerror\s*=`, Category: "xss", Weight: 1},
		{Pattern: `onload\s*=`, Category: "xss", Weight: 1},
		{Pattern: "javascript:", Category: "xss", Weight: 1},
		{Pattern: `union\s+(all\s+)?select`, Category: "sqli", Weight: 1},
		{Pattern: `sleep\s*\(`, Category: "sqli", Weight: 1},
		{Pattern: `benchmark\s*\(`, Category: "sqli", Weight: 1},
		{Pattern: `load_file\s*\(`, Category: "sqli", Weight: 1},
		{Pattern: `\.\./`, Category: "traversal", Weight: 1},
		{Pattern: `\.\.\\`, Category: "traversal", Weight: 1},
		{Pattern: "\x00", Category: "null_byte", Weight: 1},
		{Pattern: "%00", Category: "null_byte", Weight: 1},
		{Pattern: "\r\n", Category: "header_injection", Weight: 1},
		{Pattern: "%0d%0a", Category: "header_injection", Weight: 1},
	}
}

// DefaultNotFoundRules scores probes for sensitive files on 404 responses
func DefaultNotFoundRules() []models.SignatureRule {
	probe := func(p string) models.SignatureRule {
		return models.SignatureRule{Pattern: p, Category: "sensitive_path", Weight: 1}
	}
	return []models.SignatureRule{
		probe(`\.env`), probe("phpmyadmin"), probe("pma"), probe(`wp-config\.php`),
		probe(`\.git`), probe(`\.svn`), probe(`\.hg`), probe("vendor/"),
		probe(`composer\.json`), probe("id_rsa"), probe("ssh"), probe("backup"),
		probe("bak"), probe(`\.zip`), probe(`\.tar`), probe(`\.gz`), probe(`\.7z`),
		probe("webshell"), probe("wso"), probe("r57"), probe("c99"),
		probe(`eval\(`), probe("base64,"), probe(`wp-admin\.php`),
		probe(`\.(sql|dump|old|swp|save)$`),
	}
}

// DefaultSpamRules scores comment bodies
func DefaultSpamRules() []models.SignatureRule {
	return []models.SignatureRule{
		{Pattern: `(viagra|cialis|levitra)`, Category: "pharma", Weight: 2},
		{Pattern: `\b(casino|poker|betting)\b`, Category: "gambling", Weight: 1},
		{Pattern: `\[url=`, Category: "bbcode_link", Weight: 2},
		{Pattern: `<\s*a\s+href`, Category: "html_link", Weight: 1},
		{Pattern: `(bit\.ly|tinyurl\.com|goo\.gl)/`, Category: "shortener", Weight: 1},
		{Pattern: "free money", Category: "scam", Weight: 2},
		{Pattern: `\b(seo services|backlinks)\b`, Category: "seo", Weight: 1},
	}
}
