package api

import (
	"crypto/subtle"
	"errors"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/alexedwards/argon2id"
	"github.com/golang-jwt/jwt/v4"

	"github.com/mizuki-commits/dashboard-template/config"
)

const defaultSessionTTL = 24 * time.Hour

var errInvalidCredentials = errors.New("invalid credentials")

// Session is an issued login token.
type Session struct {
	Token     string    `json:"token"`
	User      string    `json:"user"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Auth issues session tokens for the configured user and validates bearer
// tokens. Tokens are HS256 signed with the session secret; when a JWKS is
// configured RS256 tokens from that issuer are accepted too.
type Auth struct {
	JWKS     *keyfunc.JWKS
	Audience string
	Issuer   string

	username     string
	password     string
	passwordHash string
	secret       []byte
	ttl          time.Duration
	now          func() time.Time

	parser      *jwt.Parser
	keyCache    sync.Map
	keyCacheTTL time.Duration
}

type cachedKey struct {
	key       any
	expiresAt time.Time
}

// NewAuth creates an Auth from cfg. jwks may be nil.
func NewAuth(cfg config.AuthConfig, jwks *keyfunc.JWKS) *Auth {
	a := &Auth{
		JWKS:         jwks,
		Audience:     cfg.Audience,
		Issuer:       cfg.Issuer,
		username:     cfg.Username,
		password:     cfg.Password,
		passwordHash: cfg.PasswordHash,
		secret:       []byte(cfg.Secret),
		ttl:          cfg.SessionTTL,
		now:          time.Now,
		keyCacheTTL:  cfg.JWKSCacheTTL,
	}
	if a.ttl <= 0 {
		a.ttl = defaultSessionTTL
	}
	var methods []string
	if len(a.secret) > 0 {
		methods = append(methods, jwt.SigningMethodHS256.Alg())
	}
	if jwks != nil {
		methods = append(methods, jwt.SigningMethodRS256.Alg())
	}
	a.parser = jwt.NewParser(jwt.WithValidMethods(methods))
	return a
}

// Login checks the credentials against the configured user and issues a
// session token.
func (a *Auth) Login(username, password string) (Session, error) {
	if a.username == "" || subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) != 1 {
		return Session{}, errInvalidCredentials
	}
	ok, err := a.checkPassword(password)
	if err != nil {
		return Session{}, err
	}
	if !ok {
		return Session{}, errInvalidCredentials
	}
	if len(a.secret) == 0 {
		return Session{}, errors.New("session secret not configured")
	}

	now := a.now()
	exp := now.Add(a.ttl)
	claims := jwt.MapClaims{
		"sub": username,
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": exp.Unix(),
	}
	if a.Audience != "" {
		claims["aud"] = a.Audience
	}
	if a.Issuer != "" {
		claims["iss"] = a.Issuer
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: signed, User: username, ExpiresAt: exp.UTC()}, nil
}

func (a *Auth) checkPassword(password string) (bool, error) {
	if a.passwordHash != "" {
		return argon2id.ComparePasswordAndHash(password, a.passwordHash)
	}
	if a.password == "" {
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(a.password)) == 1, nil
}

// UserIDFromAuthHeader extracts the user identifier from the Authorization header.
func (a *Auth) UserIDFromAuthHeader(h string) (string, error) {
	if h == "" {
		return "", errMissingAuthorization
	}
	token, err := bearerTokenFromString(h)
	if err != nil {
		return "", err
	}
	return a.UserIDFromBearer(token)
}

// UserIDFromBearer extracts the user identifier from a bearer token presented as raw bytes.
func (a *Auth) UserIDFromBearer(token []byte) (string, error) {
	if len(token) == 0 {
		return "", errBadAuthorization
	}

	parsedToken, err := a.parser.Parse(readOnlyString(token), a.keyForToken)
	if err != nil {
		return "", err
	}

	claims, ok := parsedToken.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}

	now := a.now().Add(time.Minute).Unix()
	if !claims.VerifyExpiresAt(now, true) {
		return "", errors.New("token expired")
	}
	if !claims.VerifyNotBefore(now, false) {
		return "", errors.New("token not valid yet")
	}
	if !claims.VerifyIssuedAt(now, false) {
		return "", errors.New("token used before issued")
	}
	if a.Audience != "" && !claims.VerifyAudience(a.Audience, false) {
		return "", errors.New("invalid audience")
	}
	if a.Issuer != "" && !claims.VerifyIssuer(a.Issuer, false) {
		return "", errors.New("invalid issuer")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", errors.New("missing sub")
	}
	return sub, nil
}

func (a *Auth) keyForToken(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); ok {
		if len(a.secret) == 0 {
			return nil, errors.New("session secret not configured")
		}
		return a.secret, nil
	}
	if a.JWKS == nil {
		return nil, errors.New("jwks not configured")
	}

	kid, _ := token.Header["kid"].(string)
	if kid != "" && a.keyCacheTTL > 0 {
		if cached, ok := a.keyCache.Load(kid); ok {
			entry := cached.(cachedKey)
			if a.now().Before(entry.expiresAt) {
				return entry.key, nil
			}
			a.keyCache.Delete(kid)
		}
	}

	key, err := a.JWKS.Keyfunc(token)
	if err != nil {
		return nil, err
	}

	if kid != "" && a.keyCacheTTL > 0 {
		a.keyCache.Store(kid, cachedKey{key: key, expiresAt: a.now().Add(a.keyCacheTTL)})
	}
	return key, nil
}
