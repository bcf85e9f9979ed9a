package errors

import (
	stderrors "errors"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBuilderSetsAllFields verifies the fluent builder populates the
// enhanced error.
func TestBuilderSetsAllFields(t *testing.T) {
	t.Parallel()

	err := Newf("capture device %q not found", "hw:1,0").
		Component("myaudio").
		Category(CategoryDeviceUnavailable).
		Context("device", "hw:1,0").
		Build()

	var ee *EnhancedError
	require.True(t, As(err, &ee))
	assert.Equal(t, "myaudio", ee.Component)
	assert.Equal(t, CategoryDeviceUnavailable, ee.Category)
	assert.Equal(t, "hw:1,0", ee.GetContext()["device"])
	assert.False(t, ee.Timestamp.IsZero())
	assert.Equal(t, `capture device "hw:1,0" not found`, err.Error())
}

// TestWrapPreservesChain verifies errors.Is still finds the original error
// through the enhancement.
func TestWrapPreservesChain(t *testing.T) {
	t.Parallel()

	err := Wrap(fs.ErrNotExist).
		Component("bellnet").
		Category(CategoryModelLoad).
		Build()

	assert.True(t, Is(err, fs.ErrNotExist))
	assert.Equal(t, CategoryModelLoad, Category(err))
}

// TestCategoryPropagatesThroughRewrap verifies re-wrapping an enhanced
// error keeps its category when the outer builder sets none.
func TestCategoryPropagatesThroughRewrap(t *testing.T) {
	t.Parallel()

	inner := Newf("filterbank produced NaN").
		Category(CategoryFeatureExtraction).
		Build()

	outer := Wrap(inner).Component("detection").Build()

	assert.Equal(t, CategoryFeatureExtraction, Category(outer))
	assert.True(t, IsRecoverable(outer))
}

// TestCategoryOverrideWins verifies an explicit builder category beats the
// wrapped error's category.
func TestCategoryOverrideWins(t *testing.T) {
	t.Parallel()

	inner := Newf("read failed").Category(CategoryFileIO).Build()
	outer := Wrap(inner).Category(CategoryAudioStream).Build()

	assert.Equal(t, CategoryAudioStream, Category(outer))
}

// TestCategoryOfPlainError verifies uncategorized errors fall back to
// generic and are treated as neither fatal nor recoverable.
func TestCategoryOfPlainError(t *testing.T) {
	t.Parallel()

	err := stderrors.New("something broke")
	assert.Equal(t, CategoryGeneric, Category(err))
	assert.False(t, IsRecoverable(err))
	assert.False(t, IsFatal(err))
}

// TestRecoverableFatalSplit verifies every category lands on exactly the
// intended side of the continue-or-abort policy.
func TestRecoverableFatalSplit(t *testing.T) {
	t.Parallel()

	cases := []struct {
		category    ErrorCategory
		recoverable bool
		fatal       bool
	}{
		{CategoryFeatureExtraction, true, false},
		{CategoryShapeMismatch, true, false},
		{CategoryDeviceUnavailable, false, true},
		{CategoryAudioStream, false, true},
		{CategoryModelInit, false, true},
		{CategoryModelLoad, false, true},
		{CategoryLabelLoad, false, true},
		{CategoryValidation, false, false},
		{CategoryConfiguration, false, false},
		{CategoryFileIO, false, false},
		{CategoryHTTP, false, false},
		{CategoryGeneric, false, false},
	}

	for _, tc := range cases {
		t.Run(string(tc.category), func(t *testing.T) {
			t.Parallel()

			err := Newf("test").Category(tc.category).Build()
			assert.Equal(t, tc.recoverable, IsRecoverable(err), "IsRecoverable")
			assert.Equal(t, tc.fatal, IsFatal(err), "IsFatal")
		})
	}
}

// TestIsMatchesByCategory verifies two enhanced errors compare equal when
// their categories match, regardless of message.
func TestIsMatchesByCategory(t *testing.T) {
	t.Parallel()

	a := Newf("first").Category(CategoryShapeMismatch).Build()
	b := Newf("second").Category(CategoryShapeMismatch).Build()
	c := Newf("third").Category(CategoryModelLoad).Build()

	assert.True(t, Is(a, b))
	assert.False(t, Is(a, c))
}
