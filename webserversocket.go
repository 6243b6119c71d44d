/*
	botgate - a request firewall by ScraperWall
	Copyright (C) 2021 ScraperWall, Tobias von Dewitz <tobias@scraperwall.com>

	This program is free software: you can redistribute it and/or modify it
	under the terms of the GNU Affero General Public License as published by
	the Free Software Foundation, either version 3 of the License, or (at your
	option) any later version.

	This program is distributed in the hope that it will be useful, but WITHOUT
	ANY WARRANTY; without even the implied warranty of MERCHANTABILITY or
	FITNESS FOR A PARTICULAR PURPOSE. See the GNU Affero General Public License
	for more details.

	You should have received a copy of the GNU Affero General Public License
	along with this program. If not, see <https://www.gnu.org/licenses/>.
*/

package botgate

import (
	"bufio"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/scraperwall/botgate/config"
	"github.com/scraperwall/botgate/data"
	log "github.com/sirupsen/logrus"
)

// Answers written to the web server socket, one per request line
const (
	GateAllow   = "ALLOW"
	GateCaptcha = "CAPTCHA"
	GateDeny    = "DENY"
	GateQueue   = "QUEUE"
	GateError   = "ERROR"
)

const cookieKeyLength = 32

// ErrInvalidCookie is returned for captcha cookies that cannot be decrypted
var ErrInvalidCookie = errors.New("invalid captcha cookie")

// SocketRequest is one line a web server writes to the socket
type SocketRequest struct {
	URL       string            `json:"url"`
	IP        string            `json:"ip"`
	Xff       string            `json:"xff"`
	Cookies   string            `json:"cookies"`
	Useragent string            `json:"useragent"`
	Referer   string            `json:"referer"`
	Headers   map[string]string `json:"headers"`
	Method    string            `json:"method"`
}

// WebserverSocket answers firewall decisions to web servers over a unix socket
type WebserverSocket struct {
	listener     net.Listener
	firewall     *Firewall
	cookieKeyBin []byte
	config       *config.Config
	ctx          context.Context
}

// NewWebserverSocket listens on config.SocketFile. A stale socket file is removed first.
func NewWebserverSocket(ctx context.Context, config *config.Config, firewall *Firewall) (*WebserverSocket, error) {
	var err error

	wss := WebserverSocket{
		firewall: firewall,
		config:   config,
		ctx:      ctx,
	}

	if config.CookieKey != "" {
		wss.cookieKeyBin, err = base64.StdEncoding.DecodeString(config.CookieKey)
		if err != nil {
			return nil, fmt.Errorf("cookie key: %w", err)
		}
		if l := len(wss.cookieKeyBin); l != cookieKeyLength {
			return nil, fmt.Errorf("cookie key has wrong length: %d instead of %d", l, cookieKeyLength)
		}
	}

	if _, err := os.Stat(config.SocketFile); err == nil {
		if err := os.Remove(config.SocketFile); err != nil {
			return nil, err
		}
	}

	wss.listener, err = net.Listen("unix", config.SocketFile)
	if err != nil {
		return nil, err
	}

	go wss.autoClose()
	go wss.run()

	return &wss, nil
}

// Addr returns the socket address
func (wss *WebserverSocket) Addr() net.Addr {
	return wss.listener.Addr()
}

func (wss *WebserverSocket) autoClose() {
	<-wss.ctx.Done()
	log.Infof("closing web server socket %s", wss.listener.Addr())
	wss.listener.Close()
}

func (wss *WebserverSocket) run() {
	for {
		conn, err := wss.listener.Accept()
		if err != nil {
			select {
			case <-wss.ctx.Done():
				return
			default:
			}
			log.Warnf("accept error on %s: %s", wss.listener.Addr(), err)
			continue
		}

		go wss.serve(conn)
	}
}

func (wss *WebserverSocket) serve(conn net.Conn) {
	defer conn.Close()

	log.Debugf("client connected [%s]", conn.RemoteAddr().Network())

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var req SocketRequest

		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			log.Warnf("%s isn't valid: %s", scanner.Text(), err)
			conn.Write([]byte(GateError + "\n"))
			continue
		}

		if _, err := conn.Write([]byte(wss.decide(&req) + "\n")); err != nil {
			log.Warnf("failed to answer: %s", err)
			return
		}
	}

	log.Debug("connection closed")
}

func (wss *WebserverSocket) decide(req *SocketRequest) string {
	id, cookies := wss.identity(req)
	if id.IP == "" {
		log.Warnf("no valid client IP in %+v", req)
		return GateError
	}

	outcome, err := wss.firewall.Evaluate(id)
	if err != nil {
		log.Errorf("failed to evaluate %s: %s", id.IP, err)
		return GateError
	}

	switch outcome.Result {
	case data.Allow:
		return GateAllow
	case data.SessionQueueLimit:
		return GateQueue
	case data.Deny:
		return GateDeny
	}

	if c, err := cookies.Cookie(wss.config.CaptchaCookieName); err == nil && wss.hasValidCaptchaCookie(c.Value, id.IP) {
		log.Infof("%s solved the captcha", id.IP)
		if err := wss.firewall.Unban(id.IP); err != nil {
			log.Errorf("failed to unban %s: %s", id.IP, err)
			return GateError
		}
		return GateAllow
	}

	return GateCaptcha
}

// identity builds the identity of a socket request. Without a session cookie
// the client IP serves as session id.
func (wss *WebserverSocket) identity(req *SocketRequest) (*data.Identity, *http.Request) {
	header := make(http.Header, len(req.Headers)+1)
	for k, v := range req.Headers {
		header.Set(k, v)
	}
	cookies := &http.Request{Header: http.Header{"Cookie": {req.Cookies}}}

	ip := ""
	if parsed := net.ParseIP(req.IP); parsed != nil {
		ip = parsed.String()
	}
	if wss.config.TrustForwardedFor {
		if pip := proxyIP(req.Xff, header.Get("X-Real-IP")); pip != "" {
			ip = pip
		}
	}

	path := req.URL
	if u, err := url.Parse(req.URL); err == nil {
		path = u.Path
	}

	referer := req.Referer
	if referer == "" {
		referer = header.Get("Referer")
	}

	id := &data.Identity{
		IP:        ip,
		SessionID: ip,
		Path:      path,
		Host:      header.Get("Host"),
		Method:    req.Method,
		Referer:   referer,
		UserAgent: req.Useragent,
		Header:    header,
	}

	if c, err := cookies.Cookie(wss.config.SessionCookieName); err == nil && c.Value != "" {
		id.SessionID = c.Value
	}
	if c, err := cookies.Cookie(wss.config.JSCookieName); err == nil {
		id.JSCookie = c.Value
	}

	return id, cookies
}

// hasValidCaptchaCookie checks a cookie of the form secret|ip,ip,...|expiry
func (wss *WebserverSocket) hasValidCaptchaCookie(value, ip string) bool {
	if len(wss.cookieKeyBin) != cookieKeyLength {
		return false
	}

	valueUnescaped, err := url.QueryUnescape(value)
	if err != nil {
		log.Infof("invalid URI encoding of cookie data: %s (%s)", err, value)
		return false
	}
	valueBin, err := base64.StdEncoding.DecodeString(valueUnescaped)
	if err != nil {
		log.Infof("invalid cookie encoding for %s: %s", value, err)
		return false
	}
	dec, err := decrypt(valueBin, wss.cookieKeyBin)
	if err != nil {
		log.Infof("invalid cookie value for %s: %s", value, err)
		return false
	}

	cookieParts := strings.Split(string(dec), "|")
	if len(cookieParts) != 3 {
		log.Infof("invalid cookie content: %s", string(dec))
		return false
	}

	if cookieParts[0] != wss.config.CookieSecret {
		log.Infof("invalid secret: %s", cookieParts[0])
		return false
	}

	ts, err := strconv.ParseInt(cookieParts[2], 10, 64)
	if err != nil {
		log.Infof("invalid timestamp: %s", cookieParts[2])
		return false
	}
	if time.Unix(ts, 0).Before(wss.firewall.resources.Clock()) {
		log.Infof("captcha cookie of %s has expired", ip)
		return false
	}

	for _, cip := range strings.Split(cookieParts[1], ",") {
		if strings.TrimSpace(cip) == ip {
			return true
		}
	}
	return false
}

// EncryptCaptchaCookie creates the value of a captcha cookie that is valid for
// the given IPs until expires
func EncryptCaptchaCookie(key []byte, secret string, ips []string, expires time.Time) (string, error) {
	if len(key) != cookieKeyLength {
		return "", fmt.Errorf("cookie key has wrong length: %d instead of %d", len(key), cookieKeyLength)
	}

	plain := fmt.Sprintf("%s|%s|%d", secret, strings.Join(ips, ","), expires.Unix())
	enc, err := encrypt([]byte(plain), key)
	if err != nil {
		return "", err
	}
	return url.QueryEscape(base64.StdEncoding.EncodeToString(enc)), nil
}

func encrypt(plaintext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}

	plaintextPadded := pad(plaintext)
	encrypted := make([]byte, len(plaintextPadded))

	mode := cipher.NewCBCEncrypter(block, iv)
	mode.CryptBlocks(encrypted, plaintextPadded)

	return append(iv, encrypted...), nil
}

func decrypt(encryptedIVandData, key []byte) ([]byte, error) {
	if len(encryptedIVandData) < 2*aes.BlockSize || len(encryptedIVandData)%aes.BlockSize != 0 {
		return nil, ErrInvalidCookie
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	iv := encryptedIVandData[0:aes.BlockSize]
	encrypted := encryptedIVandData[aes.BlockSize:]

	mode := cipher.NewCBCDecrypter(block, iv)

	plaintextPadded := make([]byte, len(encrypted))
	mode.CryptBlocks(plaintextPadded, encrypted)

	plaintext := unpad(plaintextPadded)
	if plaintext == nil {
		return nil, ErrInvalidCookie
	}
	return plaintext, nil
}

func unpad(in []byte) []byte {
	if len(in) == 0 {
		return nil
	}

	padding := in[len(in)-1]
	if int(padding) > len(in) || padding > aes.BlockSize {
		return nil
	} else if padding == 0 {
		return nil
	}

	for i := len(in) - 1; i > len(in)-int(padding)-1; i-- {
		if in[i] != padding {
			return nil
		}
	}
	return in[:len(in)-int(padding)]
}

func pad(in []byte) []byte {
	padding := aes.BlockSize - (len(in) % aes.BlockSize)
	out := make([]byte, len(in), len(in)+padding)
	copy(out, in)
	for i := 0; i < padding; i++ {
		out = append(out, byte(padding))
	}
	return out
}
