package security

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// ErrImageTooLarge は取得した画像がサイズ上限を超えた場合のエラー。
var ErrImageTooLarge = errors.New("image exceeds size limit")

// FetchedImage は外部URLから取得した画像を表す。
type FetchedImage struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ImageFetcher はVIP予想に添付する画像をURLから取得する。
// プライベートIP・ループバック・リンクローカル・メタデータIPへのアクセスは
// safeurlのDialer検証により遮断される。
type ImageFetcher struct {
	client  *http.Client
	maxSize int64
}

// NewImageFetcher はSSRF対策付きHTTPクライアントを使用するImageFetcherを生成する。
func NewImageFetcher(timeout time.Duration, maxSize int64) *ImageFetcher {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(80, 443).
		Build()

	return &ImageFetcher{
		client:  safeurl.Client(config).Client,
		maxSize: maxSize,
	}
}

// NewImageFetcherWithClient は任意のHTTPクライアントでImageFetcherを生成する。
// テストでhttptestサーバーに接続する場合に使用する。
func NewImageFetcherWithClient(client *http.Client, maxSize int64) *ImageFetcher {
	return &ImageFetcher{client: client, maxSize: maxSize}
}

// Fetch は画像URLを検証したうえで取得する。
// 上限を1バイトでも超えた場合はErrImageTooLargeを返す。
// 画像形式の判定は呼び出し側で行う。
func (f *ImageFetcher) Fetch(ctx context.Context, rawURL string) (*FetchedImage, error) {
	if err := ValidateURL(rawURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "image/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	if resp.ContentLength > f.maxSize {
		return nil, ErrImageTooLarge
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read image body: %w", err)
	}
	if int64(len(data)) > f.maxSize {
		return nil, ErrImageTooLarge
	}

	return &FetchedImage{
		Filename:    filenameFromURL(rawURL),
		ContentType: resp.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func filenameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		return ""
	}
	return name
}

// allowedSchemes は画像取得で許可されるURLスキーム。
var allowedSchemes = []string{"http", "https"}

// blockedNetworks は事前検証で拒否するネットワーク範囲。
// DNS解決後のIPアドレスはsafeurlのDialer側で検証される。
var blockedNetworks = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"0.0.0.0/8",
	"::1/128",
	"fe80::/10",
	"fc00::/7",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	networks := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s: %v", cidr, err))
		}
		networks = append(networks, network)
	}
	return networks
}

// ValidateURL はDNS解決を伴わない静的なURL検証を行う。
// スキームがhttp/https以外、ホストが空、ブロック対象のIPアドレスやlocalhostの場合はエラーを返す。
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("disallowed scheme: %q", parsed.Scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}

	if ip := net.ParseIP(host); ip != nil {
		for _, network := range blockedNetworks {
			if network.Contains(ip) {
				return fmt.Errorf("blocked IP address: %s", ip.String())
			}
		}
		return nil
	}

	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return fmt.Errorf("blocked host: %s", host)
	}
	return nil
}
