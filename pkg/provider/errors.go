package provider

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/harun/gemchat/pkg/chat"
	"google.golang.org/genai"
)

// classifyError maps a GenAI client failure onto a chat.ProviderError kind.
func classifyError(ctx context.Context, err error) *chat.ProviderError {
	if perr, ok := chat.AsProviderError(err); ok {
		return perr
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return chat.NewProviderError(NameGemini, chat.KindTimeout, err)
	}

	if code, ok := apiErrorCode(err); ok {
		perr := chat.NewProviderError(NameGemini, kindForStatus(code), err)
		perr.StatusCode = code
		return perr
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return chat.NewProviderError(NameGemini, chat.KindTimeout, err)
	}

	return chat.NewProviderError(NameGemini, chat.KindNetwork, err)
}

func apiErrorCode(err error) (int, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code, true
	}
	return 0, false
}

func kindForStatus(code int) chat.ErrorKind {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return chat.KindAuth
	case http.StatusTooManyRequests:
		return chat.KindQuota
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return chat.KindTimeout
	default:
		return chat.KindUpstream
	}
}
