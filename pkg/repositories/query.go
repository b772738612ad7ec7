package repositories

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

type compiledFilter struct {
	path  []string
	op    Op
	value interface{}
}

type matcher struct {
	filters []compiledFilter
}

// compile normalizes filter values through JSON so they compare equal to decoded document fields.
func compile(q Query) (*matcher, error) {
	m := &matcher{}
	for _, f := range q.Where {
		if f.Op != OpEqual && f.Op != OpArrayContains {
			return nil, fmt.Errorf("unsupported query operator %q", f.Op)
		}
		b, err := json.Marshal(f.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to encode filter value for %s: %w", f.Field, err)
		}
		var v interface{}
		if err := json.Unmarshal(b, &v); err != nil {
			return nil, fmt.Errorf("failed to normalize filter value for %s: %w", f.Field, err)
		}
		m.filters = append(m.filters, compiledFilter{
			path:  strings.Split(f.Field, "."),
			op:    f.Op,
			value: v,
		})
	}
	return m, nil
}

func (m *matcher) match(doc *Document) (bool, error) {
	if len(m.filters) == 0 {
		return true, nil
	}
	var data interface{}
	if err := json.Unmarshal(doc.Data, &data); err != nil {
		return false, fmt.Errorf("failed to decode %s/%s: %w", doc.Collection, doc.ID, err)
	}
	for _, f := range m.filters {
		field, ok := lookup(data, f.path)
		if !ok {
			return false, nil
		}
		switch f.op {
		case OpEqual:
			if !reflect.DeepEqual(field, f.value) {
				return false, nil
			}
		case OpArrayContains:
			arr, ok := field.([]interface{})
			if !ok {
				return false, nil
			}
			found := false
			for _, el := range arr {
				if reflect.DeepEqual(el, f.value) {
					found = true
					break
				}
			}
			if !found {
				return false, nil
			}
		}
	}
	return true, nil
}

func lookup(v interface{}, path []string) (interface{}, bool) {
	for _, p := range path {
		obj, ok := v.(map[string]interface{})
		if !ok {
			return nil, false
		}
		v, ok = obj[p]
		if !ok {
			return nil, false
		}
	}
	return v, true
}

func sortDocuments(docs []*Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.Before(docs[j].CreatedAt)
		}
		return docs[i].ID < docs[j].ID
	})
}

// filterDocuments sorts docs and returns those matching q, honoring q.Limit.
func filterDocuments(q Query, docs []*Document) ([]*Document, error) {
	m, err := compile(q)
	if err != nil {
		return nil, err
	}
	sortDocuments(docs)
	out := make([]*Document, 0, len(docs))
	for _, doc := range docs {
		ok, err := m.match(doc)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, doc)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}
