// Package clientip はリクエスト元IPアドレスの抽出とログ用のマスキングを提供する。
package clientip

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// FromRequest はログ出力用にリクエスト元のIPアドレスを返す。
// trustProxyがtrueの場合のみX-Forwarded-Forの先頭、次いでX-Real-IPを参照する。
// いずれも取得できない場合は接続元アドレスのホスト部を返す。
//
// X-Forwarded-Forの先頭はクライアントが自由に設定できるため、
// レート制限などのキーにはForRateLimitを使うこと。
func FromRequest(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := normalize(first); ip != "" {
				return ip
			}
		}
		if ip := normalize(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}
	return remoteHost(r)
}

// ForRateLimit はレート制限のキーとなるIPアドレスを返す。
// trustProxyがtrueの場合はプロキシが上書きするX-Real-IPのみを参照し、
// X-Forwarded-Forは見ない。取得できない場合は接続元アドレスのホスト部を返す。
func ForRateLimit(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if ip := normalize(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}
	return remoteHost(r)
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if ip := normalize(host); ip != "" {
		return ip
	}
	return host
}

// normalize はIPアドレスとして解釈できる場合のみ正規化した文字列を返す。
func normalize(s string) string {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return ""
	}
	return addr.Unmap().String()
}

// Mask はログ出力用にIPアドレスの末尾を伏せる。
// IPv4は最終オクテット、IPv6は末尾3グループを0にする。
// IPアドレスとして解釈できない場合は"unknown"を返す。
func Mask(ip string) string {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return "unknown"
	}
	addr = addr.Unmap()

	if addr.Is4() {
		b := addr.As4()
		b[3] = 0
		return netip.AddrFrom4(b).String()
	}

	b := addr.As16()
	for i := 10; i < 16; i++ {
		b[i] = 0
	}
	return netip.AddrFrom16(b).String()
}
