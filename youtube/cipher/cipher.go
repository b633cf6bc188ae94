// Package cipher resolves protected stream URLs. Some streams carry a
// signatureCipher instead of a direct URL; the unscrambling routine lives in
// the player script YouTube serves alongside the watch page, so the package
// fetches that script, caches it, and evaluates the relevant functions.
package cipher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/robertkrimen/otto"

	"github.com/ytget/fetchvideo/client"
	"github.com/ytget/fetchvideo/internal/logger"
)

const (
	ytBase = "https://www.youtube.com"

	decipherFuncName = "decipher"
	ncodeFuncName    = "ncode"

	// Player scripts rotate rarely; a short TTL keeps one fetch per burst
	// of downloads.
	playerJSTTL = 10 * time.Minute
)

var playerJSURLRegex = regexp.MustCompile(`"jsUrl":"([^"]+)"`)

type scriptEntry struct {
	body  []byte
	expAt time.Time
}

// HTTPGetter fetches a URL, retrying transient failures. *client.Client
// satisfies it.
type HTTPGetter interface {
	Get(ctx context.Context, url string) (*http.Response, error)
}

// Solver fetches and caches player scripts and evaluates their signature
// and n-parameter transforms.
type Solver struct {
	client HTTPGetter
	log    *logger.ComponentLogger

	mu    sync.Mutex
	cache map[string]scriptEntry

	now func() time.Time
}

// NewSolver creates a Solver. A nil getter uses a default retrying client.
func NewSolver(getter HTTPGetter) *Solver {
	if getter == nil {
		getter = client.New()
	}
	return &Solver{
		client: getter,
		log:    logger.WithComponent(logger.ComponentCipher),
		cache:  make(map[string]scriptEntry),
		now:    time.Now,
	}
}

// PlayerJSURL scrapes the player script URL from a watch page.
func (s *Solver) PlayerJSURL(ctx context.Context, videoURL string) (string, error) {
	resp, err := s.client.Get(ctx, videoURL)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	matches := playerJSURLRegex.FindSubmatch(body)
	if len(matches) < 2 || len(matches[1]) == 0 {
		return "", fmt.Errorf("could not find player js url in video page")
	}
	path := strings.ReplaceAll(string(matches[1]), `\/`, `/`)
	if strings.HasPrefix(path, "http") {
		return path, nil
	}
	return ytBase + path, nil
}

func (s *Solver) playerJS(ctx context.Context, playerJSURL string) ([]byte, error) {
	s.mu.Lock()
	entry, ok := s.cache[playerJSURL]
	if ok && s.now().Before(entry.expAt) {
		body := entry.body
		s.mu.Unlock()
		return body, nil
	}
	s.mu.Unlock()

	resp, err := s.client.Get(ctx, playerJSURL)
	if err != nil {
		return nil, fmt.Errorf("download player.js: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read player.js content: %v", err)
	}

	s.mu.Lock()
	s.cache[playerJSURL] = scriptEntry{body: body, expAt: s.now().Add(playerJSTTL)}
	s.mu.Unlock()
	s.log.Debug("fetched player script", map[string]interface{}{
		"url": playerJSURL, "bytes": len(body),
	})
	return body, nil
}

// Decipher unscrambles a stream signature. A regex fast path handles the
// common transform chains without JS execution; otherwise the script runs
// in otto.
func (s *Solver) Decipher(ctx context.Context, playerJSURL, signature string) (string, error) {
	script, err := s.playerJS(ctx, playerJSURL)
	if err != nil {
		return "", err
	}
	if out, ok := tryRegexDecipher(string(script), signature); ok {
		return out, nil
	}

	vm := otto.New()
	if _, err := vm.Run(string(script)); err != nil {
		return "", fmt.Errorf("run player.js in otto: %v", err)
	}
	value, err := vm.Call(decipherFuncName, nil, signature)
	if err != nil {
		return "", fmt.Errorf("call decipher function: %v", err)
	}
	result, err := value.ToString()
	if err != nil {
		return "", fmt.Errorf("decipher function did not return a string: %v", err)
	}
	return result, nil
}

// TransformN decodes the throttling n-parameter. The transform uses modern
// JS syntax that otto cannot parse, so it runs in goja. Returns the input
// unchanged when the script exposes no transform.
func (s *Solver) TransformN(ctx context.Context, playerJSURL, nval string) (string, error) {
	script, err := s.playerJS(ctx, playerJSURL)
	if err != nil {
		return "", err
	}
	vm := goja.New()
	if _, err := vm.RunString(string(script)); err != nil {
		return "", fmt.Errorf("run player.js in goja: %v", err)
	}
	fn, ok := goja.AssertFunction(vm.Get(ncodeFuncName))
	if !ok {
		return nval, nil
	}
	value, err := fn(goja.Undefined(), vm.ToValue(nval))
	if err != nil {
		return "", fmt.Errorf("call ncode function: %v", err)
	}
	return value.String(), nil
}
