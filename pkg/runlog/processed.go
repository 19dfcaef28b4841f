package runlog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// MinerKey identifies a miner across registry snapshots.
type MinerKey struct {
	UID    int
	Hotkey string
}

type scoreFileHeader struct {
	ChallengeUID string  `json:"challenge_uid"`
	MinerUID     *int    `json:"miner_uid"`
	MinerHotkey  *string `json:"miner_hotkey"`
}

// ProcessedMiners scans scoresDir for score files belonging to challengeUID
// and returns the miners that already produced artifacts for it. Unreadable
// or malformed files are skipped; a missing directory yields an empty set.
func ProcessedMiners(scoresDir, challengeUID string) map[MinerKey]struct{} {
	processed := map[MinerKey]struct{}{}

	entries, err := os.ReadDir(scoresDir)
	if err != nil {
		return processed
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(scoresDir, entry.Name()))
		if err != nil {
			continue
		}
		var header scoreFileHeader
		if err := json.Unmarshal(data, &header); err != nil {
			continue
		}
		if header.ChallengeUID != challengeUID || header.MinerUID == nil || header.MinerHotkey == nil {
			continue
		}
		processed[MinerKey{UID: *header.MinerUID, Hotkey: *header.MinerHotkey}] = struct{}{}
	}
	return processed
}
