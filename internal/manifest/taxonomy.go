package manifest

import "github.com/docsmcp/docsmcp/internal/docmodel"

// MergeTaxonomy unions the taxonomy blocks of every manifest seen during
// a build. `vector_collapse=true` is sticky (any manifest saying true
// wins); `properties[value].mcp_resource=true` is sticky per (key,
// value).
func MergeTaxonomy(manifests map[string]*docmodel.Manifest) map[string]docmodel.TaxonomyDim {
	merged := map[string]docmodel.TaxonomyDim{}
	for _, m := range manifests {
		if m == nil {
			continue
		}
		for key, dim := range m.Taxonomy {
			cur, ok := merged[key]
			if !ok {
				cur = docmodel.TaxonomyDim{Properties: map[string]docmodel.TaxonomyProperty{}}
			}
			if dim.VectorCollapse {
				cur.VectorCollapse = true
			}
			for val, prop := range dim.Properties {
				if cur.Properties == nil {
					cur.Properties = map[string]docmodel.TaxonomyProperty{}
				}
				curProp := cur.Properties[val]
				if prop.MCPResource {
					curProp.MCPResource = true
				}
				cur.Properties[val] = curProp
			}
			merged[key] = cur
		}
	}
	return merged
}
