// Package sms is the reference SMS channel adapter: destination
// normalization, country/priority-based provider selection, and
// channel-local throughput guards on top of the engine-wide limiter.
package sms

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/Shiki0138/hotelbooking-sub004/internal/notify"
)

const AdapterName = "sms_gateway"

// Provider is one upstream SMS gateway.
type Provider interface {
	Name() string
	SendText(ctx context.Context, phone, text string) (messageID string, err error)
	Ping(ctx context.Context) error
}

// ProviderRoute binds a provider to the destinations it serves. An empty
// CountryCodes list matches everywhere; Premium routes are preferred for
// urgent tiers, the rest are cost-optimized defaults.
type ProviderRoute struct {
	Provider     Provider
	CountryCodes []string
	Premium      bool
}

// Config bounds the channel-local guards.
type Config struct {
	DefaultCountryCode string
	// GlobalPerMinute caps this channel's total outbound rate, independent
	// of the engine-wide limiter.
	GlobalPerMinute int
	// PerDestination caps messages to one number inside PerDestWindow.
	PerDestination int
	PerDestWindow  time.Duration
}

func (c *Config) applyDefaults() {
	if c.GlobalPerMinute <= 0 {
		c.GlobalPerMinute = 60
	}
	if c.PerDestination <= 0 {
		c.PerDestination = 3
	}
	if c.PerDestWindow <= 0 {
		c.PerDestWindow = time.Minute
	}
}

type destWindow struct {
	count       int
	windowStart time.Time
}

// Adapter implements notify.Adapter for SMS.
type Adapter struct {
	routes []ProviderRoute
	cfg    Config
	log    zerolog.Logger

	global *rate.Limiter

	mu       sync.Mutex
	perDest  map[string]*destWindow
	knownCCs []string

	currentTime func() time.Time
}

func NewAdapter(routes []ProviderRoute, cfg Config, log zerolog.Logger) *Adapter {
	cfg.applyDefaults()
	var known []string
	for _, route := range routes {
		known = append(known, route.CountryCodes...)
	}
	return &Adapter{
		routes:      routes,
		cfg:         cfg,
		log:         log.With().Str("component", "sms-adapter").Logger(),
		global:      rate.NewLimiter(rate.Limit(float64(cfg.GlobalPerMinute)/60.0), cfg.GlobalPerMinute),
		perDest:     map[string]*destWindow{},
		knownCCs:    known,
		currentTime: time.Now,
	}
}

// SetTimeProvider overrides the clock, mainly for tests.
func (a *Adapter) SetTimeProvider(now func() time.Time) { a.currentTime = now }

func (a *Adapter) Name() string             { return AdapterName }
func (a *Adapter) Kind() notify.ChannelKind { return notify.ChannelSMS }

func (a *Adapter) Send(ctx context.Context, destination string, payload notify.Payload, opts notify.SendOptions) (notify.Receipt, error) {
	phone, err := Normalize(destination, a.cfg.DefaultCountryCode)
	if err != nil {
		// A number that cannot be normalized will never deliver.
		return notify.Receipt{}, notify.Permanent("bad_destination", err)
	}

	if !a.global.Allow() {
		return notify.Receipt{}, notify.Transient("channel_throttled", errors.New("sms channel per-minute cap reached"))
	}
	if !a.allowDestination(phone) {
		return notify.Receipt{}, notify.Transient("destination_throttled",
			fmt.Errorf("per-destination cap reached for %s", phone))
	}

	provider, err := a.selectProvider(phone, opts.Priority)
	if err != nil {
		return notify.Receipt{}, notify.Transient("no_provider", err)
	}

	messageID, err := provider.SendText(ctx, phone, renderText(payload))
	if err != nil {
		return notify.Receipt{}, a.classify(err)
	}

	a.log.Debug().Str("request", opts.RequestID).Str("provider", provider.Name()).
		Str("message_id", messageID).Msg("sms delivered")
	return notify.Receipt{
		Channel:           notify.ChannelSMS,
		ProviderMessageID: messageID,
		SentAt:            a.currentTime(),
	}, nil
}

// selectProvider picks the route for the destination's country: urgent
// tiers go to a premium route when one matches, the rest take the first
// matching cost-optimized route.
func (a *Adapter) selectProvider(phone string, priority notify.Priority) (Provider, error) {
	country := CountryCode(phone, a.knownCCs)
	urgent := priority == notify.PriorityCritical || priority == notify.PriorityHigh

	var fallback Provider
	for _, route := range a.routes {
		if !route.matches(country) {
			continue
		}
		if urgent && route.Premium {
			return route.Provider, nil
		}
		if !route.Premium && fallback == nil {
			fallback = route.Provider
		}
	}
	if fallback != nil {
		return fallback, nil
	}
	// Urgent traffic with no premium match, or premium-only routing: take
	// any matching route at all.
	for _, route := range a.routes {
		if route.matches(country) {
			return route.Provider, nil
		}
	}
	return nil, fmt.Errorf("no sms route for country %q", country)
}

func (r ProviderRoute) matches(country string) bool {
	if len(r.CountryCodes) == 0 {
		return true
	}
	for _, code := range r.CountryCodes {
		if code == country {
			return true
		}
	}
	return false
}

// allowDestination enforces the per-number rolling cap.
func (a *Adapter) allowDestination(phone string) bool {
	now := a.currentTime()
	a.mu.Lock()
	defer a.mu.Unlock()
	w, ok := a.perDest[phone]
	if !ok || now.Sub(w.windowStart) >= a.cfg.PerDestWindow {
		w = &destWindow{windowStart: now}
		a.perDest[phone] = w
	}
	if w.count >= a.cfg.PerDestination {
		return false
	}
	w.count++
	return true
}

// classify maps provider errors onto the transient/permanent contract. SMS
// gateways report dead numbers with distinctive sentinel errors; everything
// else is worth a retry.
func (a *Adapter) classify(err error) error {
	if errors.Is(err, ErrMalformedNumber) || errors.Is(err, ErrUnroutableNumber) {
		return notify.Permanent("unroutable", err)
	}
	return notify.Transient("", err)
}

// ErrUnroutableNumber is returned by providers for numbers that no longer
// exist on any carrier.
var ErrUnroutableNumber = errors.New("number unroutable")

func renderText(payload notify.Payload) string {
	switch {
	case payload.Title != "" && payload.Body != "":
		return payload.Title + ": " + payload.Body
	case payload.Body != "":
		return payload.Body
	default:
		return payload.Title
	}
}

// Probe pings every configured provider; one live route keeps the channel
// healthy.
func (a *Adapter) Probe(ctx context.Context) notify.HealthStatus {
	status := notify.HealthStatus{CheckedAt: a.currentTime()}
	if len(a.routes) == 0 {
		status.Detail = "no providers configured"
		return status
	}
	var lastErr error
	for _, route := range a.routes {
		if err := route.Provider.Ping(ctx); err != nil {
			lastErr = err
			continue
		}
		status.Healthy = true
		return status
	}
	status.Detail = lastErr.Error()
	return status
}
