package store

import (
	"errors"
	"strings"

	"github.com/joescharf/reviewctl/internal/api"
	"github.com/joescharf/reviewctl/internal/validation"
)

// Messages are the fallback texts stored in Error when a failure carries
// no message of its own.
type Messages struct {
	FetchReviews    string
	FetchReview     string
	CreateReview    string
	DeleteReview    string
	ReanalyzeReview string
}

var EnglishMessages = Messages{
	FetchReviews:    "Failed to load reviews",
	FetchReview:     "Review not found",
	CreateReview:    "Failed to create review",
	DeleteReview:    "Failed to delete review",
	ReanalyzeReview: "Failed to reanalyze review",
}

var RussianMessages = Messages{
	FetchReviews:    "Ошибка загрузки reviews",
	FetchReview:     "Review не найден",
	CreateReview:    "Ошибка создания review",
	DeleteReview:    "Ошибка удаления review",
	ReanalyzeReview: "Ошибка повторного анализа",
}

// MessagesFor returns the catalog for a locale, defaulting to English.
func MessagesFor(locale string) Messages {
	switch strings.ToLower(locale) {
	case "ru", "ru-ru", "ru_ru":
		return RussianMessages
	default:
		return EnglishMessages
	}
}

// userMessage picks the server message, then a validation message, then
// the fallback.
func userMessage(err error, fallback string) string {
	if msg := api.ServerMessage(err); msg != "" {
		return msg
	}
	var vErr *validation.ValidationError
	if errors.As(err, &vErr) {
		return vErr.Error()
	}
	return fallback
}
