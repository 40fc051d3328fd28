package telegram

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	coreconfig "github.com/YouMeAI/YouMeCare/core/config"
	"github.com/YouMeAI/YouMeCare/core/telegram/netutil"

	tele "gopkg.in/telebot.v4"
)

const defaultLongPoll = 10 * time.Second

// newPoller picks webhook or long polling from the config.
func newPoller(cfg *coreconfig.Config) tele.Poller {
	if strings.EqualFold(cfg.Telegram.RunMode, coreconfig.RunModeWebhook) {
		return &tele.Webhook{
			Listen:   net.JoinHostPort(cfg.Webhook.Listen, fmt.Sprint(cfg.Webhook.Port)),
			Endpoint: &tele.WebhookEndpoint{PublicURL: cfg.Webhook.URL},
		}
	}
	timeout := defaultLongPoll
	if s := cfg.Telegram.LongPollTimeoutSeconds; s > 0 {
		timeout = time.Duration(s) * time.Second
	}
	return &tele.LongPoller{Timeout: timeout}
}

// newHTTPClient returns the client telebot uses for Bot API calls. The
// client timeout must exceed the long poll timeout or getUpdates would
// always fail.
func newHTTPClient(longPoll time.Duration) *http.Client {
	base := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{
		Timeout:   longPoll + 20*time.Second,
		Transport: &retrying{next: base, attempts: 3, pause: 500 * time.Millisecond},
	}
}

// retrying repeats requests whose connection could not be established.
// A timeout after the request went out is returned as is: sendMessage may
// already have been delivered, and the sender dispatcher decides on API
// level retries.
type retrying struct {
	next     http.RoundTripper
	attempts int
	pause    time.Duration
}

func (t *retrying) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	for i := 1; err != nil && i < t.attempts && netutil.IsDialError(err); i++ {
		if req.Body != nil && req.GetBody == nil {
			break
		}
		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(t.pause * time.Duration(i)):
		}
		retry := req.Clone(req.Context())
		if req.GetBody != nil {
			body, bodyErr := req.GetBody()
			if bodyErr != nil {
				return nil, bodyErr
			}
			retry.Body = body
		}
		resp, err = t.next.RoundTrip(retry)
	}
	return resp, err
}
