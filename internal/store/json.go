package store

import (
	"encoding/json"

	"github.com/basket/pixivbot-go/internal/model"
)

func marshalStrings(ss []string) string {
	if ss == nil {
		ss = []string{}
	}
	b, _ := json.Marshal(ss)
	return string(b)
}

func unmarshalStrings(raw string) []string {
	if raw == "" {
		return nil
	}
	var ss []string
	if err := json.Unmarshal([]byte(raw), &ss); err != nil {
		return nil
	}
	return ss
}

func marshalMap(m map[string]any) string {
	if m == nil {
		m = map[string]any{}
	}
	b, _ := json.Marshal(m)
	return string(b)
}

func unmarshalMap(raw string) map[string]any {
	m := map[string]any{}
	if raw == "" {
		return m
	}
	_ = json.Unmarshal([]byte(raw), &m)
	return m
}

func marshalPending(p model.PendingDelivery) string {
	b, _ := json.Marshal(p)
	return string(b)
}

func unmarshalPending(raw string) *model.PendingDelivery {
	var p model.PendingDelivery
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil
	}
	return &p
}
