package metadata

import (
	"strconv"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestResolveIPFS(t *testing.T) {
	tests := []struct {
		uri, gateway, want string
	}{
		{"ipfs://QmHash/1.json", "https://ipfs.io/ipfs/", "https://ipfs.io/ipfs/QmHash/1.json"},
		{"ipfs://ipfs/QmHash", "https://ipfs.io/ipfs/", "https://ipfs.io/ipfs/QmHash"},
		{"ipfs://QmHash", "https://gw.example/ipfs", "https://gw.example/ipfs/QmHash"},
		{"https://meta.example/1", "https://ipfs.io/ipfs/", "https://meta.example/1"},
		{"", "https://ipfs.io/ipfs/", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ResolveIPFS(tt.uri, tt.gateway), tt.uri)
	}
}

func TestLogoPlaceholder(t *testing.T) {
	assert.Equal(t, "https://via.placeholder.com/128x128?text=USDC", LogoPlaceholder("USDC"))
	assert.Equal(t, "https://via.placeholder.com/128x128?text=A+B", LogoPlaceholder("A B"))
}

func TestPlaceholdersNeverEmpty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("NFT placeholder has image, name and description", prop.ForAll(
		func(asset string, id uint64) bool {
			m := PlaceholderNFT(asset, strconv.FormatUint(id, 10), 1)
			return m.ImageURL != "" && m.Name != "" && m.Description != ""
		},
		gen.AlphaString(),
		gen.UInt64(),
	))

	properties.Property("token placeholder has symbol, name and image", prop.ForAll(
		func(token string) bool {
			m := PlaceholderToken(token, 1)
			return m.Symbol != "" && m.Name != "" && m.ImageURL != "" && m.Decimals == DefaultDecimals
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
