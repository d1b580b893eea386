package callbacks

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "browse_products", Normalize("browse_products"))
	assert.Equal(t, "category_C1", Normalize("\fcategory|C1"))
	assert.Equal(t, "back_to_main_menu", Normalize("\fback_to_main_menu"))
	assert.Equal(t, "back_to_main_menu", Normalize("\fback_to_main_menu|"))
}

func TestSplitPrefixPrefersListedOrder(t *testing.T) {
	prefixes := []string{"buy_category_", "category_"}

	p, arg, ok := SplitPrefix("buy_category_C1", prefixes)
	assert.True(t, ok)
	assert.Equal(t, "buy_category_", p)
	assert.Equal(t, "C1", arg)

	p, arg, ok = SplitPrefix(Data("category_", "C2"), prefixes)
	assert.True(t, ok)
	assert.Equal(t, "category_", p)
	assert.Equal(t, "C2", arg)

	_, _, ok = SplitPrefix("category_", prefixes)
	assert.False(t, ok)
	_, _, ok = SplitPrefix("view_wallet", prefixes)
	assert.False(t, ok)
}
