package schema

import (
	"fmt"
	"sort"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

// ============================================================================
// TOPOJSON DISCOVERY — Feature fields for geoshape sources
// ============================================================================
// Vega extracts one GeoJSON Feature per geometry of the named object, so the
// visible fields are type, id, geometry, properties and properties.<key>.
// ============================================================================

// ErrFeatureNotFound is returned when a topology has no object of the
// requested name.
var ErrFeatureNotFound = errors.New("topojson feature not found")

type topology struct {
	Type    string                    `json:"type"`
	Objects map[string]topologyObject `json:"objects"`
}

type topologyObject struct {
	Type       string `json:"type"`
	Geometries []struct {
		ID         interface{}            `json:"id"`
		Properties map[string]interface{} `json:"properties"`
	} `json:"geometries"`
}

// DiscoverFromTopoJSON inspects the object called feature inside a TopoJSON
// topology.
func DiscoverFromTopoJSON(data []byte, feature string) (*Config, error) {
	var topo topology
	if err := jsoniter.Unmarshal(data, &topo); err != nil {
		return nil, errors.Wrap(err, "decode topojson")
	}
	if topo.Type != "Topology" {
		return nil, errors.Errorf("decode topojson: type is %q, want \"Topology\"", topo.Type)
	}
	obj, ok := topo.Objects[feature]
	if !ok {
		return nil, errors.Wrapf(ErrFeatureNotFound, "%q (have %v)", feature, objectNames(topo))
	}

	config := &Config{
		Name:         fmt.Sprintf("TopoJSON %s", feature),
		Format:       "topojson",
		Feature:      feature,
		Rows:         len(obj.Geometries),
		DiscoveredAt: time.Now().Format(time.RFC3339),
		Fields: []FieldMeta{
			{Key: "type", DisplayName: "Type", Type: TypeNominal},
			{Key: "id", DisplayName: "Id", Type: TypeNominal},
			{Key: "geometry", DisplayName: "Geometry", Type: TypeNominal},
			{Key: "properties", DisplayName: "Properties", Type: TypeNominal},
		},
	}

	columns := map[string][]string{}
	var keys []string
	for _, g := range obj.Geometries {
		for k := range g.Properties {
			if _, seen := columns[k]; !seen {
				keys = append(keys, k)
				columns[k] = nil
			}
		}
	}
	sort.Strings(keys)
	for _, g := range obj.Geometries {
		for _, k := range keys {
			v, ok := g.Properties[k]
			if !ok || v == nil {
				columns[k] = append(columns[k], "")
				continue
			}
			columns[k] = append(columns[k], fmt.Sprint(v))
		}
	}
	for _, k := range keys {
		config.Fields = append(config.Fields, analyzeColumn("properties."+k, columns[k]))
	}
	return config, nil
}

func objectNames(t topology) []string {
	names := make([]string, 0, len(t.Objects))
	for n := range t.Objects {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
