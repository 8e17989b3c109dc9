package dictionary

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadReturnsRawContent(t *testing.T) {
	dir := t.TempDir()
	companies := "STT,Mã cp,Tên chính thức,Ngành,Từ khóa\n1,VCB,Vietcombank,Ngân hàng,\"vcb, vietcombank\"\n"
	sectors := "STT,Ngành\n1,Ngân hàng\n2,Bất động sản\n"

	set, err := Load(
		writeFile(t, dir, "companies.csv", "\uFEFF"+companies),
		writeFile(t, dir, "sectors.csv", sectors),
	)
	require.NoError(t, err)
	assert.Equal(t, companies, set.Companies, "BOM stripped, content otherwise unchanged")
	assert.Equal(t, sectors, set.Sectors)
}

func TestLoadMissingFile(t *testing.T) {
	dir := t.TempDir()
	sectors := writeFile(t, dir, "sectors.csv", "STT,Ngành\n1,Thép\n")

	_, err := Load(filepath.Join(dir, "nope.csv"), sectors)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "companies")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadEmptyFile(t *testing.T) {
	dir := t.TempDir()
	companies := writeFile(t, dir, "companies.csv", "1,VCB\n")
	sectors := writeFile(t, dir, "sectors.csv", "  \n")

	_, err := Load(companies, sectors)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sectors")
}
