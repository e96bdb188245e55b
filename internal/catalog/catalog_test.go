package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProduct_FolderKey(t *testing.T) {
	tests := []struct {
		name    string
		product Product
		prefix  string
		want    string
	}{
		{"explicit folder", Product{ID: 7, Folder: "Collections/Lion"}, "", "Collections/Lion"},
		{"default prefix", Product{ID: 7}, "", "Digital Products/7"},
		{"custom prefix", Product{ID: 12}, "art", "art/12"},
		{"blank folder uses prefix", Product{ID: 3, Folder: "   "}, "", "Digital Products/3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.product.FolderKey(tt.prefix))
		})
	}
}

func TestManifestEntry_SizeBytes(t *testing.T) {
	assert.Equal(t, int64(12000000), ManifestEntry{Size: "12 MB"}.SizeBytes())
	assert.Equal(t, int64(1572864), ManifestEntry{Size: "1.5 MiB"}.SizeBytes())
	assert.Zero(t, ManifestEntry{Size: "huge"}.SizeBytes())
	assert.Zero(t, ManifestEntry{}.SizeBytes())
}

func TestOrder_Matches(t *testing.T) {
	o := Order{ID: "a1", OrderID: "ORD-1700000000000", SessionID: "cs_test_123"}

	assert.True(t, o.Matches("a1"))
	assert.True(t, o.Matches("", "ORD-1700000000000"))
	assert.True(t, o.Matches("nope", "cs_test_123"))
	assert.False(t, o.Matches("nope"))
	assert.False(t, o.Matches(""))
	assert.False(t, Order{}.Matches(""))
}

func TestTable_Lookup(t *testing.T) {
	table := DefaultTable()

	names, ok := table.Lookup("faith-decor")
	require.True(t, ok)
	assert.Equal(t, []string{"Names of God", "Faith-Based Art", "Identity in Christ", "Prophetic Art"}, names)

	_, ok = table.Lookup(" FAITH-DECOR ")
	assert.True(t, ok, "ids are case insensitive")

	_, ok = table.Lookup("unknown")
	assert.False(t, ok)
}

func TestTable_Contains(t *testing.T) {
	table := DefaultTable()

	assert.True(t, table.Contains("faith-decor", "names of god"))
	assert.True(t, table.Contains("faith-decor", " Prophetic Art "))
	assert.False(t, table.Contains("faith-decor", "Nature"))
	assert.False(t, table.Contains("unknown", "Nature"))
	assert.False(t, table.Contains("faith-decor", ""))
}

func TestTable_Related(t *testing.T) {
	table := DefaultTable()

	related := table.Related("Names of God")
	assert.ElementsMatch(t, []string{"Names of God", "Faith-Based Art", "Identity in Christ", "Prophetic Art"}, related)

	assert.Equal(t, []string{"Unmapped"}, table.Related("Unmapped"))
	assert.Nil(t, table.Related(" "))
}

func TestTable_IDsSorted(t *testing.T) {
	table := NewTable(map[string][]string{"b": {"B"}, "a": {"A"}, " ": {"blank"}, "c": {" "}})

	assert.Equal(t, []string{"a", "b"}, table.IDs())
}

func TestLoadTable(t *testing.T) {
	dir := t.TempDir()

	valid := filepath.Join(dir, "categories.yaml")
	require.NoError(t, os.WriteFile(valid, []byte(`
categories:
  faith-decor:
    - Names of God
    - Prophetic Art
  seasonal:
    - Christmas
`), 0o600))

	table, err := LoadTable(valid)
	require.NoError(t, err)
	assert.Equal(t, []string{"faith-decor", "seasonal"}, table.IDs())
	assert.True(t, table.Contains("seasonal", "christmas"))

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("categories: {}\n"), 0o600))

	_, err = LoadTable(empty)
	require.Error(t, err)

	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("categories: [\n"), 0o600))

	_, err = LoadTable(broken)
	require.Error(t, err)

	_, err = LoadTable(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Lion of Judah", "Lion_of_Judah"},
		{"  --Hello--World!  ", "Hello_World"},
		{"El Shaddai (8x10)", "El_Shaddai_8x10"},
		{"Café", "Caf"},
		{"!!!", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeName(tt.in))
		})
	}
}

func TestStripName(t *testing.T) {
	assert.Equal(t, "LionofJudah", StripName("Lion of Judah!"))
	assert.Equal(t, "faithdecor", StripName("faith-decor"))
	assert.Equal(t, "", StripName("../.."))
}

func TestErrors(t *testing.T) {
	idErr := &IdentifierError{Kind: "product", Value: "abc", Reason: "must be numeric"}
	assert.Equal(t, `invalid product identifier "abc": must be numeric`, idErr.Error())

	assert.Equal(t, "credential missing: no order id", (&CredentialError{Missing: true, Reason: "no order id"}).Error())
	assert.Equal(t, "credential denied: too short", (&CredentialError{Reason: "too short"}).Error())

	cause := errors.New("open orders.json: no such file")
	storeErr := &StoreError{Store: "orders", Op: "find_orders", Err: cause}
	assert.True(t, errors.Is(storeErr, ErrStoreUnavailable))
	assert.True(t, errors.Is(storeErr, cause))
	assert.Equal(t, "orders store unavailable during find_orders", (&StoreError{Store: "orders", Op: "find_orders"}).Error())

	wrapped := errors.Join(errors.New("outer"), storeErr)
	assert.True(t, errors.Is(wrapped, ErrStoreUnavailable))

	assert.Equal(t, "no files found for category faith-decor", (&EmptyResultError{Kind: "category", ID: "faith-decor"}).Error())

	archErr := &ArchiveError{Entry: "a.png", Err: cause}
	assert.ErrorIs(t, archErr, cause)
	assert.Contains(t, archErr.Error(), `entry "a.png"`)
}
