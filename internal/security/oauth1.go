package security

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

type OAuth1Credentials struct {
	ConsumerKey    string
	ConsumerSecret string
	Token          string
	TokenSecret    string
}

// OAuth1Request is a request to sign. Params holds the form or query
// parameters that take part in the signature; parameters already present in
// URL's query string are merged in automatically.
type OAuth1Request struct {
	Method string
	URL    string
	Params url.Values
	// Extra oauth_* protocol parameters such as oauth_callback or
	// oauth_verifier. They are both signed and emitted in the header.
	Protocol map[string]string
}

// PercentEncode applies RFC 3986 encoding: everything outside the unreserved
// set A-Z a-z 0-9 - . _ ~ is escaped with uppercase hex.
func PercentEncode(s string) string {
	const hexDigits = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hexDigits[c>>4])
		b.WriteByte(hexDigits[c&0x0F])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	case c == '-' || c == '.' || c == '_' || c == '~':
		return true
	}
	return false
}

type encodedPair struct{ k, v string }

// SignatureBaseString builds METHOD&enc(base-url)&enc(sorted params).
func SignatureBaseString(method, rawURL string, params url.Values) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	all := url.Values{}
	for k, vs := range u.Query() {
		all[k] = append(all[k], vs...)
	}
	for k, vs := range params {
		all[k] = append(all[k], vs...)
	}

	pairs := make([]encodedPair, 0, len(all))
	for k, vs := range all {
		for _, v := range vs {
			pairs = append(pairs, encodedPair{PercentEncode(k), PercentEncode(v)})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].k == pairs[j].k {
			return pairs[i].v < pairs[j].v
		}
		return pairs[i].k < pairs[j].k
	})
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, p.k+"="+p.v)
	}

	base := strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host) + u.EscapedPath()
	return strings.ToUpper(method) + "&" + PercentEncode(base) + "&" + PercentEncode(strings.Join(parts, "&")), nil
}

// SignOAuth1 is the deterministic core: the caller supplies nonce and
// timestamp. It returns the full Authorization header value.
func SignOAuth1(req OAuth1Request, creds OAuth1Credentials, nonce string, timestamp int64) (string, error) {
	oauthParams := map[string]string{
		"oauth_consumer_key":     creds.ConsumerKey,
		"oauth_nonce":            nonce,
		"oauth_signature_method": "HMAC-SHA1",
		"oauth_timestamp":        strconv.FormatInt(timestamp, 10),
		"oauth_version":          "1.0",
	}
	if creds.Token != "" {
		oauthParams["oauth_token"] = creds.Token
	}
	for k, v := range req.Protocol {
		oauthParams[k] = v
	}

	signed := url.Values{}
	for k, vs := range req.Params {
		signed[k] = append(signed[k], vs...)
	}
	for k, v := range oauthParams {
		signed.Set(k, v)
	}
	base, err := SignatureBaseString(req.Method, req.URL, signed)
	if err != nil {
		return "", err
	}

	key := PercentEncode(creds.ConsumerSecret) + "&" + PercentEncode(creds.TokenSecret)
	mac := hmac.New(sha1.New, []byte(key))
	mac.Write([]byte(base))
	oauthParams["oauth_signature"] = base64.StdEncoding.EncodeToString(mac.Sum(nil))

	keys := make([]string, 0, len(oauthParams))
	for k := range oauthParams {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf(`%s="%s"`, PercentEncode(k), PercentEncode(oauthParams[k])))
	}
	return "OAuth " + strings.Join(parts, ", "), nil
}

// OAuth1Header signs req with a fresh nonce and the current time.
func OAuth1Header(req OAuth1Request, creds OAuth1Credentials) (string, error) {
	nonce, err := NewNonce()
	if err != nil {
		return "", err
	}
	return SignOAuth1(req, creds, nonce, time.Now().Unix())
}
