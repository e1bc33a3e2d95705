package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/reviewctl/internal/models"
)

func TestValidateStruct_CreateReviewInput(t *testing.T) {
	testCases := []struct {
		name             string
		input            models.CreateReviewInput
		expectError      bool
		expectedErrorMsg string
	}{
		{
			name:  "code only",
			input: models.CreateReviewInput{Code: "package main", Language: "go"},
		},
		{
			name:  "repository only",
			input: models.CreateReviewInput{RepositoryURL: "https://github.com/acme/app", Branch: "main"},
		},
		{
			name:             "neither code nor repository",
			input:            models.CreateReviewInput{Title: "empty"},
			expectError:      true,
			expectedErrorMsg: "field 'Code' is required when 'RepositoryURL' is empty",
		},
		{
			name:             "bad repository url",
			input:            models.CreateReviewInput{RepositoryURL: "not a url"},
			expectError:      true,
			expectedErrorMsg: "field 'RepositoryURL' failed on the 'url' tag",
		},
		{
			name:             "language too long",
			input:            models.CreateReviewInput{Code: "x", Language: strings.Repeat("a", 33)},
			expectError:      true,
			expectedErrorMsg: "field 'Language' must be at most 32 characters",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateStruct(tc.input)
			if !tc.expectError {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)

			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Contains(t, vErr.Errors, tc.expectedErrorMsg)
		})
	}
}

func TestValidateID(t *testing.T) {
	assert.NoError(t, ValidateID("01HZX3-review_1"))

	err := ValidateID("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "'id' failed on the 'required' tag")

	err = ValidateID("../etc/passwd")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must contain only letters, numbers, hyphens, and underscores")
}
