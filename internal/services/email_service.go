package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/patrickmn/go-cache"

	"github.com/BradenHooton/rampart/internal/models"
)

const (
	alertSendTimeout = 10 * time.Second
	// alertCooldown suppresses repeat alerts for the same policy and address
	alertCooldown = 10 * time.Minute
)

// SESAPI is the subset of the SES client used for alerts
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// AlertService e-mails an administrator when a subject gets locked out.
// It is an event sink; other event types are ignored.
type AlertService struct {
	client      SESAPI
	fromAddress string
	toAddress   string
	logger      *slog.Logger
	recent      *cache.Cache
	wg          sync.WaitGroup
}

// NewSESAlertService creates an AlertService backed by AWS SES
func NewSESAlertService(region, fromAddress, toAddress string, logger *slog.Logger) (*AlertService, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewAlertService(ses.NewFromConfig(cfg), fromAddress, toAddress, logger), nil
}

// NewAlertService creates an AlertService using client
func NewAlertService(client SESAPI, fromAddress, toAddress string, logger *slog.Logger) *AlertService {
	return &AlertService{
		client:      client,
		fromAddress: fromAddress,
		toAddress:   toAddress,
		logger:      logger,
		recent:      cache.New(alertCooldown, alertCooldown),
	}
}

// EmitEvent sends an alert for lockout events in the background
func (s *AlertService) EmitEvent(ctx context.Context, eventType string, fields map[string]any) {
	if !models.IsAlert(eventType) {
		return
	}

	key := fmt.Sprintf("%v|%v", fields["policy"], fields["ip"])
	if err := s.recent.Add(key, struct{}{}, cache.DefaultExpiration); err != nil {
		return
	}

	subject, text := renderAlert(eventType, fields)
	sendCtx := context.WithoutCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.send(sendCtx, subject, text); err != nil {
			s.logger.Error("failed to send lockout alert", slog.Any("error", err))
		}
	}()
}

// Wait blocks until in-flight alerts are sent
func (s *AlertService) Wait() {
	s.wg.Wait()
}

func (s *AlertService) send(ctx context.Context, subject, text string) error {
	ctx, cancel := context.WithTimeout(ctx, alertSendTimeout)
	defer cancel()

	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{s.toAddress},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data: aws.String(text),
				},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("lockout alert sent", slog.String("message_id", aws.ToString(result.MessageId)))
	return nil
}

func renderAlert(eventType string, fields map[string]any) (string, string) {
	subject := fmt.Sprintf("[rampart] %s: %v locked by %v", eventType, fields["ip"], fields["policy"])

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("A client was locked out.\n\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %v\n", k, fields[k])
	}
	b.WriteString("\nThe lock expires on its own. This is an automated message.\n")
	return subject, b.String()
}
