package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/brogergvhs/mangapipe/internal/cache"
	"github.com/brogergvhs/mangapipe/internal/carrier"
)

// companionInterceptor reads scramble geometry from the XML documents served
// next to the image. It fetches them through the base transport so the
// companion requests never re-enter the chain.
type companionInterceptor struct {
	base  http.RoundTripper
	faces *cache.Memo[string, carrier.Face]
}

func (*companionInterceptor) Name() string { return "companion-descramble" }
func (*companionInterceptor) Order() int   { return OrderCompanion }

func (*companionInterceptor) Applicable(u *url.URL) bool {
	return carrier.HasFragment(u, carrier.FragmentCompanion)
}

func (c *companionInterceptor) Apply(ctx context.Context, x *Exchange) error {
	pageNo, ok, err := carrier.CompanionPage(x.URL)
	if err != nil {
		return skip(err)
	}
	if !ok {
		return nil
	}

	faceURL := carrier.FaceURL(x.Forwarded)
	face, err := c.faces.GetOrLoad(ctx, faceURL.String(), func(ctx context.Context) (carrier.Face, error) {
		var f carrier.Face
		err := c.fetch(ctx, faceURL, x.Header, func(r io.Reader) (err error) {
			f, err = carrier.ParseFace(r)
			return err
		})
		return f, err
	})
	if err != nil {
		return skip(err)
	}

	var page carrier.PageDescriptor
	err = c.fetch(ctx, carrier.PageURL(x.Forwarded, pageNo), x.Header, func(r io.Reader) (err error) {
		page, err = carrier.ParsePage(r)
		return err
	})
	if err != nil {
		return skip(err)
	}

	p, err := carrier.CompanionParams(face, page)
	if err != nil {
		return skip(err)
	}

	return applyTiles(x, p)
}

func (c *companionInterceptor) fetch(ctx context.Context, u *url.URL, header http.Header, parse func(io.Reader) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	for _, name := range []string{"User-Agent", "Referer", "Cookie", "Authorization"} {
		if v := header.Get(name); v != "" {
			req.Header.Set(name, v)
		}
	}

	resp, err := c.base.RoundTrip(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("GET %s: HTTP %d", u.Redacted(), resp.StatusCode)
	}

	return parse(resp.Body)
}
