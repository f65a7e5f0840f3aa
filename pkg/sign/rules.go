package sign

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	errs "ofdl/pkg/errors"
)

// DefaultRulesURL serves the community-maintained rule set.
const DefaultRulesURL = "https://raw.githubusercontent.com/deviint/onlyfans-dynamic-rules/main/dynamicRules.json"

// rulesDocument mirrors Rules with pointers so missing keys can be told
// apart from zero values.
type rulesDocument struct {
	StaticParam      *string `json:"static_param"`
	Format           *string `json:"format"`
	ChecksumIndexes  *[]int  `json:"checksum_indexes"`
	ChecksumConstant *int    `json:"checksum_constant"`
	AppToken         *string `json:"app_token"`
}

// ParseRules decodes a rules document, requiring every field.
func ParseRules(data []byte) (*Rules, error) {
	var doc rulesDocument
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
		return nil, err
	}

	var missing []string
	if doc.StaticParam == nil {
		missing = append(missing, "static_param")
	}
	if doc.Format == nil {
		missing = append(missing, "format")
	}
	if doc.ChecksumIndexes == nil {
		missing = append(missing, "checksum_indexes")
	}
	if doc.ChecksumConstant == nil {
		missing = append(missing, "checksum_constant")
	}
	if doc.AppToken == nil {
		missing = append(missing, "app_token")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("rules document missing %v", missing)
	}

	return &Rules{
		StaticParam:      *doc.StaticParam,
		Format:           *doc.Format,
		ChecksumIndexes:  *doc.ChecksumIndexes,
		ChecksumConstant: *doc.ChecksumConstant,
		AppToken:         *doc.AppToken,
	}, nil
}

// FetchRules downloads and validates the rule set at url.
func FetchRules(ctx context.Context, client *http.Client, url string) (*Rules, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.New(errs.ErrorTypeConfig, url, "invalid rules url", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, errs.New(errs.ErrorTypeNetwork, url, "fetch rules", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errs.FromStatus(url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errs.New(errs.ErrorTypeNetwork, url, "read rules", err)
	}

	rules, err := ParseRules(data)
	if err != nil {
		return nil, errs.New(errs.ErrorTypeParsing, url, "decode rules", err)
	}
	return rules, nil
}
