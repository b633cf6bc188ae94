// Package catalog talks to the InnerTube player endpoint and normalizes its
// format lists into stream descriptors. Descriptors are derived fresh on
// every call; stream URLs expire server-side, so nothing here is persisted.
package catalog

import (
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"

	"github.com/ytget/fetchvideo/client"
	"github.com/ytget/fetchvideo/errs"
	"github.com/ytget/fetchvideo/internal/logger"
	"github.com/ytget/fetchvideo/internal/mimeext"
	"github.com/ytget/fetchvideo/types"
)

const (
	defaultBaseURL       = "https://www.youtube.com"
	playerEndpointPath   = "/youtubei/v1/player"
	userAgentValue       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/135.0.0.0 Safari/537.36"
	clientNameWEB        = "WEB"
	defaultClientVersion = "2.20250312.04.00"

	playabilityOK = "OK"
)

var (
	apiKeyRe    = regexp.MustCompile(`"INNERTUBE_API_KEY":"([^"]+)"`)
	clientVerRe = regexp.MustCompile(`"INNERTUBE_CLIENT_VERSION":"([^"]+)"`)
)

// URLResolver turns a descriptor's protected signature into a playable URL.
type URLResolver interface {
	PlayerJSURL(ctx context.Context, videoURL string) (string, error)
	Decipher(ctx context.Context, playerJSURL, signature string) (string, error)
	TransformN(ctx context.Context, playerJSURL, nval string) (string, error)
}

// Provider fetches video metadata and stream listings.
type Provider struct {
	client   *client.Client
	resolver URLResolver
	log      *logger.ComponentLogger

	baseURL string

	mu        sync.Mutex
	apiKey    string
	clientVer string
}

// New creates a Provider. A nil client uses a default retrying client;
// resolver may be nil when Resolve is never called.
func New(c *client.Client, resolver URLResolver) *Provider {
	if c == nil {
		c = client.New()
	}
	return &Provider{
		client:   c,
		resolver: resolver,
		log:      logger.WithComponent(logger.ComponentCatalog),
		baseURL:  defaultBaseURL,
	}
}

type playerResponse struct {
	StreamingData struct {
		Formats         []map[string]any `json:"formats"`
		AdaptiveFormats []map[string]any `json:"adaptiveFormats"`
	} `json:"streamingData"`
	VideoDetails struct {
		VideoID       string `json:"videoId"`
		Title         string `json:"title"`
		Author        string `json:"author"`
		LengthSeconds string `json:"lengthSeconds"`
		Thumbnail     struct {
			Thumbnails []struct {
				URL string `json:"url"`
			} `json:"thumbnails"`
		} `json:"thumbnail"`
	} `json:"videoDetails"`
	PlayabilityStatus struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	} `json:"playabilityStatus"`
}

// ensureKey scrapes the API key and client version from the watch page.
func (p *Provider) ensureKey(ctx context.Context, videoID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.apiKey != "" && p.clientVer != "" {
		return nil
	}

	sources := []string{p.baseURL + "/watch?v=" + videoID, p.baseURL}
	for _, source := range sources {
		if p.apiKey != "" && p.clientVer != "" {
			break
		}
		// Plain page GETs go through the retrying client; the transport
		// disables transparent compression so the regex sees raw HTML.
		resp, err := p.client.Get(ctx, source)
		if err != nil || resp == nil {
			continue
		}
		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			continue
		}
		if p.apiKey == "" {
			if m := apiKeyRe.FindSubmatch(body); len(m) == 2 {
				p.apiKey = string(m[1])
			}
		}
		if p.clientVer == "" {
			if m := clientVerRe.FindSubmatch(body); len(m) == 2 {
				p.clientVer = string(m[1])
			}
		}
	}
	if p.clientVer == "" {
		p.clientVer = defaultClientVersion
	}
	if p.apiKey == "" {
		return fmt.Errorf("%w: api key not found", errs.ErrRemoteUnavailable)
	}
	return nil
}

func (p *Provider) playerResponse(ctx context.Context, videoID string) (*playerResponse, error) {
	if err := p.ensureKey(ctx, videoID); err != nil {
		return nil, err
	}
	p.mu.Lock()
	apiKey, clientVer := p.apiKey, p.clientVer
	p.mu.Unlock()

	requestBody, err := json.Marshal(map[string]any{
		"context": map[string]any{
			"client": map[string]any{
				"clientName":    clientNameWEB,
				"clientVersion": clientVer,
			},
		},
		"videoId": videoID,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+playerEndpointPath+"?key="+apiKey, bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgentValue)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("Referer", p.baseURL+"/")
	req.Header.Set("Origin", p.baseURL)
	req.Header.Set("X-YouTube-Client-Name", "1")
	req.Header.Set("X-YouTube-Client-Version", clientVer)

	resp, err := p.client.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: player request: %v", errs.ErrRemoteUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: player endpoint status %d", errs.ErrRemoteUnavailable, resp.StatusCode)
	}

	var reader io.Reader = resp.Body
	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "gzip":
		gzReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("create gzip reader: %v", err)
		}
		defer func() { _ = gzReader.Close() }()
		reader = gzReader
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "bzip2":
		reader = bzip2.NewReader(resp.Body)
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: read player response: %v", errs.ErrRemoteUnavailable, err)
	}
	var pr playerResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return nil, fmt.Errorf("%w: parse player response: %v", errs.ErrRemoteUnavailable, err)
	}
	if pr.PlayabilityStatus.Status != "" && pr.PlayabilityStatus.Status != playabilityOK {
		return nil, fmt.Errorf("%w: playability %s: %s", errs.ErrRemoteUnavailable,
			pr.PlayabilityStatus.Status, pr.PlayabilityStatus.Reason)
	}
	return &pr, nil
}

// Streams fetches the descriptor list and basic metadata for videoID.
func (p *Provider) Streams(ctx context.Context, videoID string) ([]types.StreamDescriptor, *types.VideoRef, error) {
	pr, err := p.playerResponse(ctx, videoID)
	if err != nil {
		return nil, nil, err
	}

	all := append(pr.StreamingData.Formats, pr.StreamingData.AdaptiveFormats...)
	descriptors := make([]types.StreamDescriptor, 0, len(all))
	for _, f := range all {
		d, ok := normalizeFormat(f)
		if !ok {
			continue
		}
		descriptors = append(descriptors, d)
	}
	p.log.Debug("fetched stream listing", map[string]interface{}{
		"video_id": videoID, "streams": len(descriptors),
	})

	ref := &types.VideoRef{
		VideoID: videoID,
		Title:   pr.VideoDetails.Title,
		Channel: pr.VideoDetails.Author,
	}
	if v, err := strconv.Atoi(pr.VideoDetails.LengthSeconds); err == nil {
		ref.Duration = v
	}
	if ts := pr.VideoDetails.Thumbnail.Thumbnails; len(ts) > 0 {
		ref.ThumbnailURL = ts[len(ts)-1].URL
	}
	return descriptors, ref, nil
}

// normalizeFormat maps one raw InnerTube format object to a descriptor.
// Formats without a recognizable mime type are dropped.
func normalizeFormat(f map[string]any) (types.StreamDescriptor, bool) {
	mimeType, _ := f["mimeType"].(string)
	kind := mimeext.TypeFromMime(mimeType)
	if kind != "video" && kind != "audio" {
		return types.StreamDescriptor{}, false
	}

	var d types.StreamDescriptor
	if kind == "video" {
		d.Kind = types.KindVideo
	} else {
		d.Kind = types.KindAudio
	}
	if v, ok := f["itag"].(float64); ok {
		d.Itag = int(v)
	}
	d.Container = mimeext.SubtypeFromMime(mimeType)
	d.Codec = mimeext.CodecsFromMime(mimeType)
	d.QualityLabel, _ = f["qualityLabel"].(string)
	if v, ok := f["fps"].(float64); ok {
		d.FPS = int(v)
	}
	if v, ok := f["bitrate"].(float64); ok && d.Kind == types.KindAudio {
		d.BitrateLabel = strconv.Itoa(int(v)/1000) + "kbps"
	}
	if v, ok := f["contentLength"].(string); ok {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			d.Size = parsed
		}
	}
	if u, ok := f["url"].(string); ok {
		d.URL = u
	} else if sc, ok := f["signatureCipher"].(string); ok {
		d.SignatureCipher = sc
	}
	if d.URL == "" && d.SignatureCipher == "" {
		return types.StreamDescriptor{}, false
	}
	return d, true
}

// Details fetches metadata only.
func (p *Provider) Details(ctx context.Context, videoID string) (*types.VideoRef, error) {
	_, ref, err := p.Streams(ctx, videoID)
	return ref, err
}
