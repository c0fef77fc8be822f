package live

import (
	"encoding/json"
	"sort"
	"strconv"
)

var emptySectors = json.RawMessage(`{"empty":true}`)

// EncodeSectors writes the jagged per-lap sector lists as
// {"<lap>":{"<sector>":"<text>"}}, leaving out laps without sectors. When no
// lap has sectors the result is {"empty":true}.
func EncodeSectors(sectors [][]string) json.RawMessage {
	out := map[string]map[string]string{}
	for lap, list := range sectors {
		if len(list) == 0 {
			continue
		}
		entry := make(map[string]string, len(list))
		for i, text := range list {
			entry[strconv.Itoa(i)] = text
		}
		out[strconv.Itoa(lap)] = entry
	}
	if len(out) == 0 {
		return emptySectors
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return emptySectors
	}
	return raw
}

// DecodeSectors rebuilds a dense list of lapCount entries. Missing laps are
// empty; keys that are not numbers or fall outside [0, lapCount) are skipped.
func DecodeSectors(raw json.RawMessage, lapCount int) [][]string {
	if lapCount < 0 {
		lapCount = 0
	}
	out := make([][]string, lapCount)
	for i := range out {
		out[i] = []string{}
	}
	for idx, list := range decodeSlots(raw) {
		if idx < lapCount {
			out[idx] = list
		}
	}
	return out
}

// decodeSlot returns the sectors stored at one lap index, or nil.
func decodeSlot(raw json.RawMessage, idx int) []string {
	return decodeSlots(raw)[idx]
}

// decodeSlots accepts both the keyed form and plain JSON arrays.
func decodeSlots(raw json.RawMessage) map[int][]string {
	slots := map[int][]string{}
	if len(raw) == 0 {
		return slots
	}

	var keyed map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keyed); err == nil {
		for key, value := range keyed {
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 {
				continue
			}
			if list := decodeList(value); len(list) > 0 {
				slots[idx] = list
			}
		}
		return slots
	}

	var listed []json.RawMessage
	if err := json.Unmarshal(raw, &listed); err == nil {
		for idx, value := range listed {
			if list := decodeList(value); len(list) > 0 {
				slots[idx] = list
			}
		}
	}
	return slots
}

func decodeList(raw json.RawMessage) []string {
	var keyed map[string]string
	if err := json.Unmarshal(raw, &keyed); err == nil {
		type entry struct {
			key  string
			num  int
			isNo bool
			text string
		}
		entries := make([]entry, 0, len(keyed))
		for k, v := range keyed {
			n, err := strconv.Atoi(k)
			entries = append(entries, entry{key: k, num: n, isNo: err == nil, text: v})
		}
		sort.Slice(entries, func(i, j int) bool {
			a, b := entries[i], entries[j]
			if a.isNo != b.isNo {
				return a.isNo
			}
			if a.isNo {
				return a.num < b.num
			}
			return a.key < b.key
		})
		list := make([]string, 0, len(entries))
		for _, e := range entries {
			list = append(list, e.text)
		}
		return list
	}

	var listed []string
	if err := json.Unmarshal(raw, &listed); err == nil {
		return listed
	}
	return nil
}
