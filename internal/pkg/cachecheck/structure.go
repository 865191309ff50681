package cachecheck

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/anicoll/tibber-prices/internal/pkg/model"
)

// StructureResult is the outcome of a structural cache inspection.
// NeedsFullRefresh is only set for damage that makes the cache unusable:
// missing sections or wrong section types. A key-set mismatch between
// homes and priceInfo is reported but does not force a full refresh.
type StructureResult struct {
	Valid                bool
	StructuralIssues     []string
	PriceStructureIssues []string
	NeedsFullRefresh     bool
}

func (r StructureResult) Issues() []string {
	return append(append([]string{}, r.StructuralIssues...), r.PriceStructureIssues...)
}

var requiredSections = []string{"userInfo", "homes", "priceInfo"}

// Structure inspects a persisted cache blob without assuming it decodes
// into the typed model, so a blob corrupted on disk is detected instead of
// aborting the load. Pure inspection, no side effects.
func Structure(raw []byte) StructureResult {
	result := StructureResult{Valid: true}

	var sections map[string]json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &sections) != nil || len(sections) == 0 {
		result.Valid = false
		result.StructuralIssues = append(result.StructuralIssues, "empty data cache")
		result.NeedsFullRefresh = true
		return result
	}

	missing := lo.Filter(requiredSections, func(section string, _ int) bool {
		_, ok := sections[section]
		return !ok
	})
	if len(missing) > 0 {
		result.Valid = false
		result.StructuralIssues = append(result.StructuralIssues,
			"missing required sections: "+strings.Join(missing, ", "))
		result.NeedsFullRefresh = true
		return result
	}

	if !isJSONObject(sections["userInfo"]) {
		result.Valid = false
		result.StructuralIssues = append(result.StructuralIssues, "invalid userInfo structure - not an object")
		result.NeedsFullRefresh = true
	}

	var homes map[string]json.RawMessage
	if !isJSONObject(sections["homes"]) || json.Unmarshal(sections["homes"], &homes) != nil {
		result.Valid = false
		result.StructuralIssues = append(result.StructuralIssues, "invalid homes structure - not an object")
		result.NeedsFullRefresh = true
	}

	var priceInfo map[string]json.RawMessage
	if !isJSONObject(sections["priceInfo"]) || json.Unmarshal(sections["priceInfo"], &priceInfo) != nil {
		result.Valid = false
		result.StructuralIssues = append(result.StructuralIssues, "invalid priceInfo structure - not an object")
		result.NeedsFullRefresh = true
		return result
	}

	checkKeyConsistency(lo.Keys(homes), lo.Keys(priceInfo), &result)

	for _, homeID := range sortedKeys(priceInfo) {
		homeRaw := priceInfo[homeID]
		var homePriceInfo map[string]json.RawMessage
		if err := json.Unmarshal(homeRaw, &homePriceInfo); err != nil {
			result.Valid = false
			result.PriceStructureIssues = append(result.PriceStructureIssues,
				fmt.Sprintf("invalid priceInfo structure for home %s - not an object", homeID))
			continue
		}
		for _, key := range []string{"today", "tomorrow"} {
			day, ok := homePriceInfo[key]
			if ok && !isJSONArray(day) {
				result.Valid = false
				result.PriceStructureIssues = append(result.PriceStructureIssues,
					fmt.Sprintf("invalid %s structure for home %s - not a list", key, homeID))
			}
		}
	}

	return result
}

// CacheStructure is the typed counterpart of Structure for the in-memory
// cache, where section types are guaranteed by the model and only missing
// sections and cross-referential consistency can go wrong.
func CacheStructure(cache *model.PriceCache) StructureResult {
	result := StructureResult{Valid: true}

	if cache.Empty() {
		result.Valid = false
		result.StructuralIssues = append(result.StructuralIssues, "empty data cache")
		result.NeedsFullRefresh = true
		return result
	}

	var missing []string
	if cache.UserInfo == nil {
		missing = append(missing, "userInfo")
	}
	if len(cache.Homes) == 0 {
		missing = append(missing, "homes")
	}
	if len(cache.PriceInfo) == 0 {
		missing = append(missing, "priceInfo")
	}
	if len(missing) > 0 {
		result.Valid = false
		result.StructuralIssues = append(result.StructuralIssues,
			"missing required sections: "+strings.Join(missing, ", "))
		result.NeedsFullRefresh = true
		return result
	}

	checkKeyConsistency(lo.Keys(cache.Homes), lo.Keys(cache.PriceInfo), &result)

	for _, homeID := range sortedKeys(cache.PriceInfo) {
		if cache.PriceInfo[homeID] == nil {
			result.Valid = false
			result.PriceStructureIssues = append(result.PriceStructureIssues,
				fmt.Sprintf("invalid priceInfo structure for home %s - not an object", homeID))
		}
	}

	return result
}

func checkKeyConsistency(homeIDs, priceInfoIDs []string, result *StructureResult) {
	missingInPriceInfo, extraInPriceInfo := lo.Difference(homeIDs, priceInfoIDs)
	if len(missingInPriceInfo) > 0 {
		sort.Strings(missingInPriceInfo)
		result.Valid = false
		result.StructuralIssues = append(result.StructuralIssues,
			"homes missing from priceInfo: "+strings.Join(missingInPriceInfo, ", "))
	}
	if len(extraInPriceInfo) > 0 {
		sort.Strings(extraInPriceInfo)
		result.Valid = false
		result.StructuralIssues = append(result.StructuralIssues,
			"unknown home IDs in priceInfo: "+strings.Join(extraInPriceInfo, ", "))
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := lo.Keys(m)
	sort.Strings(keys)
	return keys
}

func isJSONObject(raw json.RawMessage) bool {
	return firstByte(raw) == '{'
}

func isJSONArray(raw json.RawMessage) bool {
	return firstByte(raw) == '['
}

func firstByte(raw json.RawMessage) byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return 0
	}
	return trimmed[0]
}
