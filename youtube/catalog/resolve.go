package catalog

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// resolveDirect decodes the n-parameter and sets rate-limit bypass flags on
// a direct stream URL.
func (p *Provider) resolveDirect(ctx context.Context, playerJSURL, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse direct url: %v", err)
	}
	q := u.Query()
	if nval := q.Get("n"); nval != "" && p.resolver != nil {
		if nout, err := p.resolver.TransformN(ctx, playerJSURL, nval); err == nil && nout != "" {
			q.Set("n", nout)
		}
	}
	if q.Get("ratebypass") == "" {
		q.Set("ratebypass", "yes")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// resolveCiphered deciphers the signature and assembles the playable URL.
func (p *Provider) resolveCiphered(ctx context.Context, playerJSURL, signatureCipher string) (string, error) {
	parsed, err := url.ParseQuery(signatureCipher)
	if err != nil {
		return "", fmt.Errorf("parse signatureCipher: %v", err)
	}
	sig := parsed.Get("s")
	sp := parsed.Get("sp")
	if sp == "" {
		sp = "signature"
	}
	cipherURL := parsed.Get("url")
	if cipherURL == "" || sig == "" {
		return "", fmt.Errorf("signatureCipher missing signature or url")
	}
	if p.resolver == nil {
		return "", fmt.Errorf("no cipher resolver configured")
	}
	decodedSig, err := p.resolver.Decipher(ctx, playerJSURL, sig)
	if err != nil {
		return "", fmt.Errorf("decipher signature: %v", err)
	}
	u, err := url.Parse(cipherURL)
	if err != nil {
		return "", fmt.Errorf("parse cipher url: %v", err)
	}
	q := u.Query()
	q.Set(sp, decodedSig)
	if nval := q.Get("n"); nval != "" {
		if nout, err := p.resolver.TransformN(ctx, playerJSURL, nval); err == nil && nout != "" {
			q.Set("n", nout)
		}
	}
	if q.Get("ratebypass") == "" {
		q.Set("ratebypass", "yes")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Resolve returns a downloadable URL for the descriptor fields of a stream.
// Either directURL or signatureCipher must be non-empty.
func (p *Provider) Resolve(ctx context.Context, videoID, directURL, signatureCipher string) (string, error) {
	playerJSURL := ""
	needsScript := signatureCipher != "" || urlHasN(directURL)
	if needsScript && p.resolver != nil {
		var err error
		playerJSURL, err = p.resolver.PlayerJSURL(ctx, p.baseURL+"/watch?v="+videoID)
		if err != nil {
			return "", fmt.Errorf("locate player script: %v", err)
		}
	}
	if strings.TrimSpace(directURL) != "" {
		return p.resolveDirect(ctx, playerJSURL, directURL)
	}
	if strings.TrimSpace(signatureCipher) == "" {
		return "", fmt.Errorf("no url or signatureCipher for stream")
	}
	return p.resolveCiphered(ctx, playerJSURL, signatureCipher)
}

func urlHasN(rawURL string) bool {
	if rawURL == "" {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return u.Query().Get("n") != ""
}
