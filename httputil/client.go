package httputil

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/net/proxy"

	"github.com/xeptore/playtag/config"
	"github.com/xeptore/playtag/retrier"
)

// NewClient returns an HTTP client with the given per-request timeout that
// dials through the configured SOCKS5 proxy, if any.
func NewClient(timeout time.Duration, conf config.Proxy) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone() //nolint:forcetypeassert

	if conf.Enabled() {
		var proxyAuth *proxy.Auth
		if len(conf.Username) > 0 && len(conf.Password) > 0 {
			proxyAuth = &proxy.Auth{
				User:     conf.Username,
				Password: conf.Password,
			}
		}

		sock5, err := proxy.SOCKS5(
			"tcp",
			net.JoinHostPort(conf.Host, strconv.Itoa(conf.Port)),
			proxyAuth,
			proxy.Direct,
		)
		if nil != err {
			return nil, fmt.Errorf("failed to create socks5 dialer: %v", err)
		}

		dc, ok := sock5.(proxy.ContextDialer)
		if !ok {
			return nil, errors.New("failed to cast proxy to ContextDialer")
		}

		transport.Proxy = nil
		transport.DialContext = dc.DialContext
	}

	return &http.Client{ //nolint:exhaustruct
		Timeout:   timeout,
		Transport: transport,
	}, nil
}

// SendError classifies an error returned by http.Client.Do. Cancellation of
// ctx is returned as is, anything else is a transient network failure.
func SendError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); nil != ctxErr {
		return ctxErr
	}

	return retrier.Transient(err)
}
