package handlers

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"gengateway/internal/domain"
	"gengateway/internal/middleware"
)

type errorBody struct {
	Kind    domain.ErrorKind `json:"kind"`
	Message string           `json:"message"`
	Field   string           `json:"field,omitempty"`
	Hint    string           `json:"hint,omitempty"`
}

type errorResponse struct {
	Success bool      `json:"success"`
	Error   errorBody `json:"error"`
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindBadEncoding, domain.KindUnsupportedField, domain.KindMissingField,
		domain.KindInvalidValue, domain.KindInvalidTimestampRange, domain.KindInvalidCursor:
		return http.StatusBadRequest
	case domain.KindUnsupportedContentType:
		return http.StatusUnsupportedMediaType
	case domain.KindUnauthorized:
		return http.StatusUnauthorized
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindDuplicateUsername:
		return http.StatusConflict
	case domain.KindUnknownCharacter:
		return http.StatusUnprocessableEntity
	case domain.KindBackendUnavailable:
		return http.StatusServiceUnavailable
	case domain.KindBackendTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

var hints = map[domain.ErrorKind]map[string]string{
	domain.KindBadEncoding: {
		"en": "The request body could not be decoded.",
		"zh": "请求体无法解析。",
	},
	domain.KindUnsupportedContentType: {
		"en": "Send application/json or multipart/form-data.",
		"zh": "请使用 application/json 或 multipart/form-data 提交。",
	},
	domain.KindUnsupportedField: {
		"en": "Remove the field that this endpoint does not accept.",
		"zh": "请移除该接口不支持的字段。",
	},
	domain.KindMissingField: {
		"en": "A required field is missing.",
		"zh": "缺少必填字段。",
	},
	domain.KindInvalidValue: {
		"en": "A field has a value outside the accepted range.",
		"zh": "字段取值无效。",
	},
	domain.KindInvalidTimestampRange: {
		"en": "Timestamps must be two non-negative seconds with start before end.",
		"zh": "时间戳需为两个非负秒数，且开始早于结束。",
	},
	domain.KindInvalidCursor: {
		"en": "Restart pagination without a cursor.",
		"zh": "请不带 cursor 重新开始分页。",
	},
	domain.KindUnauthorized: {
		"en": "Provide a valid key in the Authorization: Bearer header.",
		"zh": "请在 Authorization: Bearer 头中提供有效密钥。",
	},
	domain.KindNotFound: {
		"en": "The requested resource does not exist.",
		"zh": "请求的资源不存在。",
	},
	domain.KindDuplicateUsername: {
		"en": "Choose a different username.",
		"zh": "该用户名已被占用，请更换。",
	},
	domain.KindUnknownCharacter: {
		"en": "Check the @username mentioned in the prompt.",
		"zh": "请检查提示词中提到的 @用户名。",
	},
	domain.KindBackendUnavailable: {
		"en": "The generation service is busy. Try again later.",
		"zh": "生成服务繁忙，请稍后重试。",
	},
	domain.KindBackendTimeout: {
		"en": "The generation took too long. Try again later.",
		"zh": "生成超时，请稍后重试。",
	},
	domain.KindInternal: {
		"en": "Something went wrong on our side.",
		"zh": "服务器内部错误。",
	},
}

func hintFor(kind domain.ErrorKind, locale string) string {
	byLocale, ok := hints[kind]
	if !ok {
		byLocale = hints[domain.KindInternal]
	}
	if h, ok := byLocale[locale]; ok {
		return h
	}
	return byLocale["en"]
}

// fail renders err as the error envelope. Only *domain.Error messages reach
// the client; anything else is logged and reported as internal.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	body := errorBody{Kind: domain.KindInternal, Message: "internal error"}
	var de *domain.Error
	if errors.As(err, &de) && de.Kind != domain.KindInternal {
		body.Kind, body.Field = de.Kind, de.Field
		body.Message = de.Message
		if body.Message == "" {
			body.Message = string(de.Kind)
		}
	}
	status := StatusFor(body.Kind)
	body.Hint = hintFor(body.Kind, middleware.LocaleFromContext(r.Context()))

	log := zerolog.Ctx(r.Context())
	if log.GetLevel() == zerolog.Disabled {
		log = &a.Logger
	}
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("kind", string(body.Kind)).Msg("request failed")
	} else {
		log.Debug().Err(err).Str("kind", string(body.Kind)).Msg("request rejected")
	}
	a.json(w, status, errorResponse{Error: body})
}

// AuthError adapts fail to the authenticator's error hook.
func (a *App) AuthError(w http.ResponseWriter, r *http.Request, err error) {
	a.fail(w, r, err)
}
