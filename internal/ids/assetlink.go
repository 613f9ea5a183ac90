package ids

import "strings"

// AssetURL is the fixed URL-path token that marks an embedded asset
// reference inside rich text, e.g. src="/api/assets/42".
const AssetURL = "/api/assets/"

// Fields are constrained to at most one asset reference; only the first
// occurrence of the token is honored by ExtractAssetID and ReplaceAssetID.

// ContainsAssetLink reports whether text embeds an asset reference.
func ContainsAssetLink(text string) bool {
	return strings.Contains(text, AssetURL)
}

// ExtractAssetID returns the asset id embedded in text, or "" if text
// contains no asset reference. The id runs from the end of the token to the
// next double quote.
func ExtractAssetID(text string) string {
	begin := strings.Index(text, AssetURL)
	if begin < 0 {
		return ""
	}
	rest := text[begin+len(AssetURL):]
	end := strings.Index(rest, `"`)
	if end < 0 {
		return rest
	}
	return rest[:end]
}

// ReplaceAssetID rewrites the embedded asset reference in text to point at
// newID. Returns text unchanged when it contains no asset reference.
func ReplaceAssetID(text, newID string) string {
	oldID := ExtractAssetID(text)
	if oldID == "" {
		return text
	}
	return strings.Replace(text, AssetURL+oldID, AssetURL+newID, 1)
}
