package core

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	StageVerified       = "verified"
	StagePriceResolved  = "price_resolved"
	StagePolicyResolved = "policy_resolved"
	StageLicenseIssued  = "license_issued"
	StageNotified       = "notified"
	StageComplete       = "complete"
)

// Service orchestrates the purchase fulfillment flow:
// Verified -> PriceResolved -> PolicyResolved -> LicenseIssued -> Notified ->
// Complete. Issuance failures are fatal to the request; notification failures
// after issuance are logged and absorbed so the provider never retries a
// delivery whose license already exists.
type Service struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	issuer          LicenseIssuer
	notifier        Notifier
	resolver        PolicyResolver
	lineItems       LineItemSource
	now             func() time.Time
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("fulfillment", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("fulfillment"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}

	resolved, err := resolveConfig(builder)
	if err != nil {
		return nil, err
	}

	if builder.issuer == nil {
		return nil, goerrors.New("core: license issuer is required", goerrors.CategoryInternal).
			WithCode(http.StatusInternalServerError).
			WithTextCode(ErrorInternal)
	}

	resolver := builder.resolver
	if resolver == nil {
		resolver = NewTablePolicyResolver(resolved.Policies.Table)
	}

	clock := builder.now
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}

	return &Service{
		config:          resolved,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		issuer:          builder.issuer,
		notifier:        builder.notifier,
		resolver:        resolver,
		lineItems:       builder.lineItems,
		now:             clock,
	}, nil
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

// Fulfill runs the purchase flow for a verified, in-scope webhook event.
// Idempotency is NOT guaranteed here: replaying the same event issues a second
// license unless a claim ledger fences the delivery upstream.
func (s *Service) Fulfill(ctx context.Context, purchase PurchaseContext) (FulfillmentResult, error) {
	if s == nil {
		return FulfillmentResult{}, fmt.Errorf("core: fulfillment service is nil")
	}
	startedAt := s.clock()
	fields := map[string]any{
		"event_id":   purchase.EventID,
		"event_type": purchase.EventType,
		"session_id": purchase.SessionID,
	}

	email := strings.TrimSpace(purchase.CustomerEmail)
	if email == "" {
		err := stageError(StageVerified, "core: customer email is missing from checkout session",
			goerrors.CategoryBadInput, ErrorMissingEmail, fields)
		s.observeFulfillment(ctx, startedAt, "fulfill", err, fields)
		return FulfillmentResult{Stage: StageVerified}, err
	}

	priceID, err := s.resolvePrice(ctx, purchase)
	if err != nil {
		s.observeFulfillment(ctx, startedAt, "fulfill", err, fields)
		return FulfillmentResult{Stage: StageVerified}, err
	}
	fields["price_id"] = priceID

	policyID, ok := s.resolver.Resolve(priceID)
	if !ok {
		err := stageError(StagePriceResolved,
			fmt.Sprintf("core: price %q is not mapped to a licensing policy", priceID),
			goerrors.CategoryBadInput, ErrorUnmappedPrice, fields)
		s.observeFulfillment(ctx, startedAt, "fulfill", err, fields)
		return FulfillmentResult{Stage: StagePriceResolved}, err
	}
	fields["policy_id"] = policyID

	name := strings.TrimSpace(purchase.CustomerName)
	if name == "" {
		name = email
	}
	record, err := s.issuer.Issue(ctx, IssueLicenseRequest{
		PolicyID:       policyID,
		Name:           name,
		Email:          email,
		IdempotencyKey: strings.TrimSpace(purchase.EventID),
		Metadata: map[string]any{
			"event_id":   purchase.EventID,
			"event_type": purchase.EventType,
			"session_id": purchase.SessionID,
			"price_id":   priceID,
		},
	})
	if err != nil {
		wrapped := goerrors.Wrap(err, goerrors.CategoryExternal, "core: license issuance failed").
			WithCode(http.StatusBadGateway).
			WithTextCode(ErrorIssueFailed).
			WithMetadata(cloneFields(fields))
		s.observeFulfillment(ctx, startedAt, "fulfill", wrapped, fields)
		return FulfillmentResult{Stage: StagePolicyResolved, PolicyID: policyID}, wrapped
	}

	result := FulfillmentResult{
		LicenseKey: record.Key,
		PolicyID:   policyID,
		Stage:      StageLicenseIssued,
		Metadata:   map[string]any{"price_id": priceID},
	}

	// Past this point nothing may fail the request: the license exists, and a
	// provider retry would mint a duplicate.
	result.Emailed = s.notifyLicense(ctx, email, record.Key, fields)
	result.Stage = StageComplete
	result.Metadata["emailed"] = result.Emailed

	s.observeFulfillment(ctx, startedAt, "fulfill", nil, fields)
	return result, nil
}

// AdminIssue issues a license for an explicit policy, bypassing payment
// verification. Every accepted call issues a new license; there is no
// idempotency source on this path.
func (s *Service) AdminIssue(ctx context.Context, req AdminIssueRequest) (FulfillmentResult, error) {
	if s == nil {
		return FulfillmentResult{}, fmt.Errorf("core: fulfillment service is nil")
	}
	startedAt := s.clock()

	policyID := strings.TrimSpace(req.PolicyID)
	email := strings.TrimSpace(req.Email)
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "admin_issue"
	}
	fields := map[string]any{
		"policy_id": policyID,
		"reason":    reason,
	}

	if policyID == "" {
		err := goerrors.New("core: policy id is required", goerrors.CategoryBadInput).
			WithCode(http.StatusBadRequest).
			WithTextCode(ErrorBadInput)
		s.observeFulfillment(ctx, startedAt, "admin_issue", err, fields)
		return FulfillmentResult{}, err
	}

	name := "Admin Issue"
	if email != "" {
		name = "Admin Issue: " + email
	}
	record, err := s.issuer.Issue(ctx, IssueLicenseRequest{
		PolicyID: policyID,
		Name:     name,
		Email:    email,
		Metadata: map[string]any{
			"email":      email,
			"reason":     reason,
			"issued_via": "admin_issue",
		},
	})
	if err != nil {
		wrapped := goerrors.Wrap(err, goerrors.CategoryExternal, "core: license issuance failed").
			WithCode(http.StatusBadGateway).
			WithTextCode(ErrorIssueFailed).
			WithMetadata(cloneFields(fields))
		s.observeFulfillment(ctx, startedAt, "admin_issue", wrapped, fields)
		return FulfillmentResult{}, wrapped
	}

	result := FulfillmentResult{
		LicenseKey: record.Key,
		PolicyID:   policyID,
		Stage:      StageLicenseIssued,
		Metadata:   map[string]any{"reason": reason},
	}
	if email != "" {
		result.Emailed = s.notifyLicense(ctx, email, record.Key, fields)
	}
	result.Stage = StageComplete
	result.Metadata["emailed"] = result.Emailed

	s.observeFulfillment(ctx, startedAt, "admin_issue", nil, fields)
	return result, nil
}

func (s *Service) resolvePrice(ctx context.Context, purchase PurchaseContext) (string, error) {
	priceID := strings.TrimSpace(purchase.PriceID)
	if priceID != "" {
		return priceID, nil
	}

	sessionID := strings.TrimSpace(purchase.SessionID)
	if sessionID != "" && s.lineItems != nil {
		fetched, err := s.lineItems.FirstPriceID(ctx, sessionID)
		if err != nil {
			return "", goerrors.Wrap(err, goerrors.CategoryExternal, "core: line item lookup failed").
				WithCode(http.StatusBadGateway).
				WithTextCode(ErrorIssueFailed).
				WithMetadata(map[string]any{"session_id": sessionID})
		}
		if fetched = strings.TrimSpace(fetched); fetched != "" {
			return fetched, nil
		}
	}

	return "", stageError(StageVerified, "core: purchased price id is missing",
		goerrors.CategoryBadInput, ErrorMissingPrice, map[string]any{
			"event_id":   purchase.EventID,
			"session_id": sessionID,
		})
}

// notifyLicense reports whether the notification was delivered. Failures are
// logged only.
func (s *Service) notifyLicense(ctx context.Context, email string, licenseKey string, fields map[string]any) bool {
	if s.notifier == nil {
		return false
	}
	notification := LicenseKeyNotification(s.config.Mail.Subject, licenseKey)
	notification.To = email
	if err := s.notifier.Send(ctx, notification); err != nil {
		notifyFields := cloneFields(fields)
		notifyFields["error"] = err.Error()
		notifyFields["text_code"] = ErrorNotifyFailed
		s.logError(ctx, "license notification failed", notifyFields)
		return false
	}
	return true
}

func (s *Service) clock() time.Time {
	if s != nil && s.now != nil {
		return s.now().UTC()
	}
	return time.Now().UTC()
}

func stageError(stage string, message string, category goerrors.Category, textCode string, fields map[string]any) error {
	metadata := cloneFields(fields)
	metadata["stage"] = stage
	return goerrors.New(message, category).
		WithCode(fulfillmentHTTPStatus(category)).
		WithTextCode(textCode).
		WithMetadata(metadata)
}

// LicenseKeyNotification builds the customer-facing message for a freshly
// issued key. The recipient is filled by the caller.
func LicenseKeyNotification(subject string, licenseKey string) Notification {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = defaultMailSubject
	}
	text := "Thank you for your purchase!\n\nYour license key:\n" + licenseKey +
		"\n\nKeep this key safe.\n"
	html := "<p>Thank you for your purchase!</p>" +
		"<p>Your license key:</p>" +
		"<p><code style=\"font-size: 18px;\">" + licenseKey + "</code></p>" +
		"<p>Keep this key safe.</p>"
	return Notification{
		Subject: subject,
		Text:    text,
		HTML:    html,
	}
}
