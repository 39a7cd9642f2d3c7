package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ividrine/tactics-api/internal/realtime/config"
	"github.com/ividrine/tactics-api/pkg/xerr"
)

// TokenAccess 只有 access token 可以建立连接或调用接口
const TokenAccess = "ACCESS"

var (
	ErrMissingToken = xerr.New(xerr.Unauthorized, "missing bearer token")
	ErrWrongType    = xerr.New(xerr.Unauthorized, "wrong token type")
)

// Claims 与用户服务签发的 token 一致：sub=userId，username 作为玩家身份
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	Type     string `json:"type"`
	jwt.RegisteredClaims
}

type Identity struct {
	PlayerID string
	Role     string
}

type Authenticator struct {
	secret   []byte
	issuer   string
	audience string
	leeway   time.Duration
	now      func() time.Time
}

func New(c config.JWTConfig) (*Authenticator, error) {
	if strings.TrimSpace(c.Secret) == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &Authenticator{
		secret:   []byte(c.Secret),
		issuer:   c.Issuer,
		audience: c.Audience,
		leeway:   c.Leeway,
		now:      time.Now,
	}, nil
}

// Verify 校验签名、过期时间、iss/aud 和 token 类型，返回玩家身份
func (a *Authenticator) Verify(token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrMissingToken
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(a.leeway),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	if a.audience != "" {
		opts = append(opts, jwt.WithAudience(a.audience))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return Identity{}, xerr.Wrap(err, xerr.Unauthorized, "")
	}
	if claims.Type != TokenAccess {
		return Identity{}, ErrWrongType
	}

	playerID := claims.Username
	if playerID == "" {
		playerID = claims.Subject
	}
	if playerID == "" {
		return Identity{}, xerr.New(xerr.Unauthorized, "token has no subject")
	}
	return Identity{PlayerID: playerID, Role: claims.Role}, nil
}

// Authenticate 从 Authorization 头取 token 校验
func (a *Authenticator) Authenticate(r *http.Request) (Identity, error) {
	token, ok := BearerFromHeader(r.Header.Get("Authorization"))
	if !ok {
		return Identity{}, ErrMissingToken
	}
	return a.Verify(token)
}

// Issue 按用户服务的格式签发 token，测试和本地联调用
func (a *Authenticator) Issue(playerID, role, tokenType string, ttl time.Duration) (string, error) {
	now := a.now()
	claims := Claims{
		Username: playerID,
		Role:     role,
		Type:     tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   playerID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if a.audience != "" {
		claims.Audience = jwt.ClaimStrings{a.audience}
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return s, nil
}

// BearerFromHeader "Bearer <token>"，scheme 大小写不敏感
func BearerFromHeader(h string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(h), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
