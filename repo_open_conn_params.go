package chatsdk

import (
	"context"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
)

const tokenQueryParam = "token"

type (
	OpenConnectionParams struct {
		URL    url.URL
		Header http.Header
	}

	// OpenConnectionParamsGetter resolves where and how to dial for a credential.
	OpenConnectionParamsGetter func(ctx context.Context, token string) (OpenConnectionParams, error)

	OpenConnectionParamsRepo struct {
		logger Logger
		getter OpenConnectionParamsGetter
	}
)

func (r OpenConnectionParamsRepo) Get(
	ctx context.Context,
	token string,
) (params OpenConnectionParams, err error) {
	params, err = r.getter(ctx, token)
	if err != nil {
		r.logger.Errorf("cannot build open connection params: %s", err)
	}
	return
}

func NewOpenConnectionParamsRepo(
	logger Logger,
	getter OpenConnectionParamsGetter,
) OpenConnectionParamsRepo {
	return OpenConnectionParamsRepo{getter: getter, logger: logger}
}

// TokenQueryParamsGetter appends the bearer token as the "token" query
// parameter of socketURL, keeping any query it already has.
func TokenQueryParamsGetter(socketURL string) OpenConnectionParamsGetter {
	return func(_ context.Context, token string) (OpenConnectionParams, error) {
		u, err := url.Parse(socketURL)
		if err != nil {
			return OpenConnectionParams{}, errors.Wrapf(err, "invalid socket url %q", socketURL)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return OpenConnectionParams{}, errors.Errorf("unsupported socket url scheme %q", u.Scheme)
		}

		q := u.Query()
		q.Set(tokenQueryParam, token)
		u.RawQuery = q.Encode()

		return OpenConnectionParams{URL: *u, Header: http.Header{}}, nil
	}
}
