package unpackr_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	unpackr "github.com/rozx/Complex-unzip-tool-v2-sub000"
)

// The classifier never sees engine internals, only console text, so these
// cases carry the literal wording real tools print.
func TestClassifyResult(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		res     *unpackr.Result
		err     error
		outcome unpackr.Outcome
	}{
		{
			name:    "clean_run",
			res:     &unpackr.Result{Stdout: "Everything is Ok"},
			outcome: unpackr.OutcomeSuccess,
		},
		{
			name:    "nil_result_nil_error",
			outcome: unpackr.OutcomeSuccess,
		},
		{
			name:    "missing_archive",
			res:     &unpackr.Result{ExitCode: 2, Stderr: "ERROR: open video.rar: no such file or directory"},
			outcome: unpackr.OutcomeNotFound,
		},
		{
			name:    "seven_zip_wrong_password",
			res:     &unpackr.Result{ExitCode: 2, Stderr: "ERROR: Data Error in encrypted file. Wrong password? : secret.txt"},
			outcome: unpackr.OutcomeWrongPassword,
		},
		{
			name:    "header_encrypted_listing",
			res:     &unpackr.Result{ExitCode: 2, Stderr: "Cannot open encrypted archive. Wrong password?"},
			outcome: unpackr.OutcomeWrongPassword,
		},
		{
			name:    "password_error_ranks_over_crc",
			res:     &unpackr.Result{ExitCode: 2, Stdout: "CRC Failed in secret.txt", Stderr: "ERROR: Wrong password : secret.txt"},
			outcome: unpackr.OutcomeWrongPassword,
		},
		{
			name:    "crc_failure",
			res:     &unpackr.Result{ExitCode: 2, Stderr: "CRC Failed : archive damaged"},
			outcome: unpackr.OutcomeCorrupted,
		},
		{
			name:    "truncated_stream",
			err:     errors.New("tar.Next: unexpected EOF"),
			outcome: unpackr.OutcomeCorrupted,
		},
		{
			name:    "not_an_archive",
			res:     &unpackr.Result{ExitCode: 2, Stderr: "ERROR: report.txt\nCannot open the file as archive"},
			outcome: unpackr.OutcomeUnsupported,
		},
		{
			name:    "unsupported_method",
			res:     &unpackr.Result{ExitCode: 2, Stderr: "Unsupported Method : weird.zip"},
			outcome: unpackr.OutcomeUnsupported,
		},
		{
			name:    "name_too_long",
			err:     errors.New("open /out/aaaa…: file name too long"),
			outcome: unpackr.OutcomePathError,
		},
		{
			name:    "cannot_create_output",
			res:     &unpackr.Result{ExitCode: 2, Stderr: "ERROR: Cannot create folder 'out/with:colon'"},
			outcome: unpackr.OutcomePathError,
		},
		{
			name:    "nonzero_exit_without_keywords",
			res:     &unpackr.Result{ExitCode: 1, Stderr: "something odd happened"},
			outcome: unpackr.OutcomeGeneric,
		},
		{
			name:    "error_without_keywords",
			err:     errors.New("exec: context finished"),
			outcome: unpackr.OutcomeGeneric,
		},
	}

	for _, testCase := range cases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, testCase.outcome, unpackr.ClassifyResult(testCase.res, testCase.err))
		})
	}
}

func TestOutcomeStructural(t *testing.T) {
	t.Parallel()

	assert.False(t, unpackr.OutcomeSuccess.Structural())
	assert.False(t, unpackr.OutcomeWrongPassword.Structural(), "another password may still fix it")

	assert.True(t, unpackr.OutcomeNotFound.Structural())
	assert.True(t, unpackr.OutcomeCorrupted.Structural())
	assert.True(t, unpackr.OutcomeUnsupported.Structural())
	assert.True(t, unpackr.OutcomePathError.Structural())
	assert.True(t, unpackr.OutcomeGeneric.Structural())
}

func TestOutcomeErr(t *testing.T) {
	t.Parallel()

	assert.NoError(t, unpackr.OutcomeSuccess.Err())
	assert.ErrorIs(t, unpackr.OutcomeNotFound.Err(), unpackr.ErrNotFound)
	assert.ErrorIs(t, unpackr.OutcomeWrongPassword.Err(), unpackr.ErrWrongPassword)
	assert.ErrorIs(t, unpackr.OutcomeCorrupted.Err(), unpackr.ErrCorrupted)
	assert.ErrorIs(t, unpackr.OutcomeUnsupported.Err(), unpackr.ErrUnsupported)
	assert.ErrorIs(t, unpackr.OutcomePathError.Err(), unpackr.ErrPathError)
	assert.ErrorIs(t, unpackr.OutcomeGeneric.Err(), unpackr.ErrBackend)
}
