package model

import (
	"bytes"
	"encoding/json"
)

// Event はオフラインイベントログの1行に対応するイベントレコード。
// ペイロードのスキーマは扱わず、JSONオブジェクトとしてそのまま送信する。
type Event = json.RawMessage

// ParseEventLine はイベントログの1行をイベントとしてパースする。
// 空行、JSONオブジェクトでない行、不正なJSONは ok=false を返す。
func ParseEventLine(line []byte) (Event, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] != '{' {
		return nil, false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(line, &obj); err != nil || obj == nil {
		return nil, false
	}
	ev := make(Event, len(line))
	copy(ev, line)
	return ev, true
}

// ParseEventLog はイベントログ全体を行単位で分割し、パース可能な行だけを返す。
// dropped にはパースできずに除外した行数（空行を除く）を返す。
func ParseEventLog(content []byte) (events []Event, dropped int) {
	for _, line := range bytes.Split(content, []byte("\n")) {
		line = bytes.TrimSuffix(line, []byte("\r"))
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		ev, ok := ParseEventLine(line)
		if !ok {
			dropped++
			continue
		}
		events = append(events, ev)
	}
	return events, dropped
}
