package middlewares

import (
	"context"
	"errors"
	"net/http"

	"github.com/carelink/emr-connector/internal/platform/logger"
)

const (
	authErrorMessage   = "Authentication failed"
	authErrorLogHeader = "Authentication error: "
	PSKClientIdHeader  = "x-emr-connector-client-id"
	PSKHeader          = "x-emr-connector-psk"
)

// Principal identifies the authenticated service caller.
type Principal interface {
	GetClientID() string
}

type key int

var principalKey key

type serviceToServicePrincipal struct {
	clientID string
}

func (sp serviceToServicePrincipal) GetClientID() string {
	return sp.clientID
}

// GetPrincipal returns the principal the auth middleware stored on the
// request context.
func GetPrincipal(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(serviceToServicePrincipal)
	return p, ok
}

type serviceCredentials struct {
	clientID string
	psk      string
}

func newServiceCredentials(clientID, psk string) (*serviceCredentials, error) {
	switch {
	case clientID == "":
		return nil, errors.New(authErrorLogHeader + "Missing " + PSKClientIdHeader + " header")
	case psk == "":
		return nil, errors.New(authErrorLogHeader + "Missing " + PSKHeader + " header")
	}
	return &serviceCredentials{
		clientID: clientID,
		psk:      psk,
	}, nil
}

type serviceCredentialsValidator struct {
	knownServiceCredentials map[string]interface{}
}

func (scv *serviceCredentialsValidator) validate(sc *serviceCredentials) error {
	switch {
	case scv.knownServiceCredentials[sc.clientID] == nil:
		return errors.New(authErrorLogHeader + "Provided ClientID not attached to any known keys")
	case sc.psk != scv.knownServiceCredentials[sc.clientID]:
		return errors.New(authErrorLogHeader + "Provided PSK does not match known key for this client")
	}
	return nil
}

// AuthMiddleware enforces the pre-shared-key service-to-service credential
// scheme on the management API.
type AuthMiddleware struct {
	Secrets map[string]interface{}
}

func (amw *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {

		sc, err := newServiceCredentials(
			req.Header.Get(PSKClientIdHeader),
			req.Header.Get(PSKHeader))
		if err != nil {
			logger.Log.Debug(err)
			http.Error(w, authErrorMessage, http.StatusUnauthorized)
			return
		}

		validator := serviceCredentialsValidator{knownServiceCredentials: amw.Secrets}
		if err := validator.validate(sc); err != nil {
			logger.Log.Debug(err)
			http.Error(w, authErrorMessage, http.StatusUnauthorized)
			return
		}

		principal := serviceToServicePrincipal{clientID: sc.clientID}
		ctx := context.WithValue(req.Context(), principalKey, principal)

		next.ServeHTTP(w, req.WithContext(ctx))
	})
}
