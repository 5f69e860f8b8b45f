package recordstore

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/azuminxx/simple-redger-sub000/pkg/models"
)

// LoadFixture builds a MemoryClient from a YAML file of the form
//
//	seat:
//	  - {$id: 1, SeatNo: "101", PCNo: PC9}
func LoadFixture(path string) (*MemoryClient, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture %s: %w", path, err)
	}

	var raw map[models.Store][]map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse fixture %s: %w", path, err)
	}

	client := NewMemoryClient()
	for store, rows := range raw {
		if !store.Valid() {
			return nil, fmt.Errorf("fixture references unknown store %q", store)
		}
		records := make([]Record, 0, len(rows))
		for i, row := range rows {
			record := Record{Fields: make(map[string]string, len(row))}
			for code, value := range row {
				str := fixtureString(value)
				switch code {
				case idField:
					id, err := strconv.ParseInt(str, 10, 64)
					if err != nil {
						return nil, fmt.Errorf("fixture %s row %d: invalid %s %q", store, i, idField, str)
					}
					record.ID = id
				case revisionField:
					record.Revision, _ = strconv.ParseInt(str, 10, 64)
				default:
					record.Fields[code] = str
				}
			}
			if record.ID == 0 {
				record.ID = int64(i + 1)
			}
			records = append(records, record)
		}
		client.Add(store, records...)
	}
	return client, nil
}

func fixtureString(v any) string {
	switch val := v.(type) {
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return toString(val)
	}
}
