package assetlib

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/hostbridge/scene-bridge-go/capability"
)

// searchResultCap bounds search_assets responses so a broad query does not
// flood the agent with the entire catalog.
const searchResultCap = 20

type categoriesParams struct {
	AssetType string `json:"asset_type" jsonschema:"enum=hdris,enum=textures,enum=models,enum=all"`
}

type searchParams struct {
	AssetType  string `json:"asset_type,omitempty" jsonschema:"enum=hdris,enum=textures,enum=models,enum=all"`
	Categories string `json:"categories,omitempty"`
}

type downloadParams struct {
	AssetID    string `json:"asset_id"`
	AssetType  string `json:"asset_type" jsonschema:"enum=hdris,enum=textures,enum=models"`
	Resolution string `json:"resolution,omitempty"`
	FileFormat string `json:"file_format,omitempty"`
}

type setTextureParams struct {
	ObjectName string `json:"object_name"`
	TextureID  string `json:"texture_id"`
}

// Library binds the catalog client and the local store behind the asset
// command set.
type Library struct {
	client *Client
	store  *LocalStore
}

// NewLibrary pairs a catalog client with a download store.
func NewLibrary(client *Client, store *LocalStore) *Library {
	return &Library{client: client, store: store}
}

// Register installs the asset commands on the registry.
func Register(reg *capability.Registry, lib *Library) {
	for _, def := range []capability.Capability{
		capability.NewHandler("get_asset_status", lib.getStatus,
			capability.WithDescription("Report asset-library availability and local download state.")),
		capability.NewHandler("get_asset_categories", lib.getCategories,
			capability.WithDescription("List catalog categories for an asset type.")),
		capability.NewHandler("search_assets", lib.search,
			capability.WithDescription("Search the asset catalog, optionally filtered by type and categories.")),
		capability.NewHandler("download_asset", lib.download,
			capability.WithDescription("Download an asset's files into the local store.")),
	} {
		reg.Register(def)
	}
}

// MaterialTarget is the slice of the scene model set_texture drives.
type MaterialTarget interface {
	ApplyTexture(objectName, textureID string, mapNames []string) (materialName string, channels []string, err error)
}

// RegisterTexturing installs set_texture, which turns a downloaded texture's
// map files into a scene material. Separate from Register because it needs a
// scene to write into.
func RegisterTexturing(reg *capability.Registry, lib *Library, target MaterialTarget) {
	reg.Register(capability.NewHandler("set_texture", func(ctx context.Context, p setTextureParams) (any, error) {
		if p.ObjectName == "" {
			return nil, capability.ValidationErrorf("object_name is required")
		}
		if p.TextureID == "" {
			return nil, capability.ValidationErrorf("texture_id is required")
		}
		maps := lib.store.TextureMaps(p.TextureID)
		if len(maps) == 0 {
			return nil, capability.ExecutionErrorf(
				"No downloaded maps found for texture: %s. Download it first with download_asset", p.TextureID)
		}
		matName, channels, err := target.ApplyTexture(p.ObjectName, p.TextureID, maps)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"object":   p.ObjectName,
			"material": matName,
			"maps":     maps,
			"channels": channels,
		}, nil
	}, capability.WithDescription("Apply a downloaded texture's maps to an object as a new material.")))
}

func (l *Library) getStatus(ctx context.Context, _ struct{}) (any, error) {
	return map[string]any{
		"enabled":          true,
		"base_url":         l.client.baseURL,
		"downloads_dir":    l.store.Dir(),
		"downloaded_count": l.store.Count(),
	}, nil
}

func (l *Library) getCategories(ctx context.Context, p categoriesParams) (any, error) {
	if p.AssetType == "" {
		return nil, capability.ValidationErrorf("asset_type is required")
	}
	categories, err := l.client.Categories(ctx, p.AssetType)
	if err != nil {
		return nil, err
	}
	return map[string]any{"categories": categories}, nil
}

func (l *Library) search(ctx context.Context, p searchParams) (any, error) {
	assets, err := l.client.Search(ctx, p.AssetType, p.Categories)
	if err != nil {
		return nil, err
	}

	// Stable listing order; the API returns a JSON object.
	ids := make([]string, 0, len(assets))
	for id := range assets {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	limited := make(map[string]json.RawMessage, searchResultCap)
	for _, id := range ids {
		if len(limited) >= searchResultCap {
			break
		}
		limited[id] = assets[id]
	}
	return map[string]any{
		"assets":         limited,
		"total_count":    len(assets),
		"returned_count": len(limited),
	}, nil
}

func (l *Library) download(ctx context.Context, p downloadParams) (any, error) {
	if p.AssetID == "" {
		return nil, capability.ValidationErrorf("asset_id is required")
	}
	if !validAssetType(p.AssetType, false) {
		return nil, capability.ValidationErrorf(
			"Invalid asset type: %s. Must be one of: hdris, textures, models", p.AssetType)
	}
	if p.Resolution == "" {
		p.Resolution = "1k"
	}

	files, err := l.client.Files(ctx, p.AssetID)
	if err != nil {
		return nil, err
	}
	refs, err := resolveFiles(files, p.AssetType, p.AssetID, p.Resolution, p.FileFormat)
	if err != nil {
		return nil, err
	}

	saved := make([]StoredFile, 0, len(refs))
	for _, ref := range refs {
		if l.store.Has(ref.name) {
			// Already downloaded; report it without re-fetching.
			for _, f := range l.store.List() {
				if f.Name == ref.name {
					saved = append(saved, f)
				}
			}
			continue
		}
		body, err := l.client.Fetch(ctx, ref.url)
		if err != nil {
			return nil, err
		}
		f, err := l.store.Save(ref.name, body)
		body.Close()
		if err != nil {
			return nil, capability.ExecutionErrorf("store %s: %v", ref.name, err)
		}
		saved = append(saved, f)
	}

	return map[string]any{
		"asset_id":   p.AssetID,
		"resolution": p.Resolution,
		"files":      saved,
	}, nil
}

// fileRef is one downloadable file resolved from the catalog listing.
type fileRef struct {
	name string
	url  string
}

type fileEntry struct {
	URL string `json:"url"`
}

// fileSection is one branch of the files document: resolution -> format ->
// file entry.
type fileSection map[string]map[string]fileEntry

func sectionOf(files map[string]json.RawMessage, name string) (fileSection, bool) {
	raw, ok := files[name]
	if !ok {
		return nil, false
	}
	var sec fileSection
	if err := json.Unmarshal(raw, &sec); err != nil {
		return nil, false
	}
	return sec, true
}

// pickFrom selects a file from a section at the given resolution. An empty
// format takes the lexicographically first one available.
func pickFrom(sec fileSection, resolution, format string) (url, chosen string, ok bool) {
	byFormat, ok := sec[resolution]
	if !ok {
		return "", "", false
	}
	if format != "" {
		e, ok := byFormat[format]
		return e.URL, format, ok
	}
	formats := make([]string, 0, len(byFormat))
	for f := range byFormat {
		formats = append(formats, f)
	}
	if len(formats) == 0 {
		return "", "", false
	}
	sort.Strings(formats)
	return byFormat[formats[0]].URL, formats[0], true
}

// resolveFiles maps the catalog's files document to concrete URLs. The
// document nests section -> resolution -> format -> {url}: HDRIs live under
// "hdri", models under their format name, and textures spread across one
// section per map (Diffuse, Rough, nor_gl, ...), all of which download
// together.
func resolveFiles(files map[string]json.RawMessage, assetType, assetID, resolution, format string) ([]fileRef, error) {
	switch assetType {
	case "hdris":
		if format == "" {
			format = "hdr"
		}
		sec, ok := sectionOf(files, "hdri")
		if !ok {
			return nil, capability.ExecutionErrorf(
				"Requested resolution or format not available for this HDRI")
		}
		u, f, ok := pickFrom(sec, resolution, format)
		if !ok {
			return nil, capability.ExecutionErrorf(
				"Requested resolution or format not available for this HDRI")
		}
		return []fileRef{{name: assetID + "." + f, url: u}}, nil

	case "models":
		if format == "" {
			format = "gltf"
		}
		sec, ok := sectionOf(files, format)
		if !ok {
			return nil, capability.ExecutionErrorf(
				"Requested format not available for this model")
		}
		u, f, ok := pickFrom(sec, resolution, format)
		if !ok {
			return nil, capability.ExecutionErrorf(
				"Requested resolution not available for this model")
		}
		return []fileRef{{name: assetID + "." + f, url: u}}, nil

	case "textures":
		sections := make([]string, 0, len(files))
		for name := range files {
			sections = append(sections, name)
		}
		sort.Strings(sections)

		var refs []fileRef
		for _, name := range sections {
			sec, ok := sectionOf(files, name)
			if !ok {
				continue
			}
			u, f, ok := pickFrom(sec, resolution, format)
			if !ok {
				continue
			}
			refs = append(refs, fileRef{name: assetID + "_" + name + "." + f, url: u})
		}
		if len(refs) == 0 {
			return nil, capability.ExecutionErrorf(
				"Requested resolution or format not available for this texture")
		}
		return refs, nil
	}
	return nil, capability.ValidationErrorf("Invalid asset type: %s", assetType)
}
