package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"

	"docsearch/internal/embedding"
	"docsearch/internal/ingest"
	"docsearch/internal/store"
)

// Handlers binds the six tool implementations to the service's shared
// dependencies: the store, the ingestion pipeline, and the availability
// set. Argument structs are tagged the way the teacher tags MCP tool
// arguments, reflected by the SDK into each tool's input schema.
type Handlers struct {
	Store         store.Store
	Pipeline      *ingest.Pipeline
	Availability  *Availability
	MaxPagesAdmin int
}

type queryDocsArgs struct {
	PackageName string `json:"package_name" jsonschema:"required,description=Name of the package to search"`
	Question    string `json:"question" jsonschema:"required,description=Natural language question about the package"`
}

func (h *Handlers) queryDocs(ctx context.Context, req *mcp.CallToolRequest, args queryDocsArgs) (*mcp.CallToolResult, any, error) {
	if !h.Availability.Has(args.PackageName) {
		available := h.Availability.Snapshot()
		return textResult(fmt.Sprintf("package %q is not available for search. Available packages: %s", args.PackageName, strings.Join(available, ", ")), true), nil, nil
	}

	provider, err := embedding.Get()
	if err != nil {
		return textResult("embedding provider is not ready", true), nil, nil
	}
	vectors, _, err := provider.EmbedTexts(ctx, []string{args.Question})
	if err != nil {
		return textResult(fmt.Sprintf("failed to embed question: %v", err), true), nil, nil
	}

	results, err := h.Store.SearchSimilar(ctx, args.PackageName, vectors[0], 10)
	if err != nil {
		return textResult(fmt.Sprintf("search failed: %v", err), true), nil, nil
	}
	if len(results) > 5 {
		results = results[:5]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From %s docs (via vector database search):\n\n", args.PackageName)
	for _, r := range results {
		fmt.Fprintf(&b, "[%.4f] %s\n%s\n\n", r.Similarity, r.Path, r.Content)
	}
	return textResult(b.String(), false), nil, nil
}

type addPackageArgs struct {
	Name         string   `json:"name" jsonschema:"required,description=Package name"`
	VersionSpec  string   `json:"version_spec" jsonschema:"required,description=Version spec: 'latest' or an exact version"`
	Features     []string `json:"features,omitempty" jsonschema:"description=Optional feature flags to pass to the crawler"`
	Enabled      *bool    `json:"enabled,omitempty" jsonschema:"description=Whether the package config is active"`
	ExpectedDocs int      `json:"expected_docs,omitempty" jsonschema:"description=Optional expected document count hint"`
}

func validVersionSpec(v string) bool {
	if v == "latest" {
		return true
	}
	return strings.ContainsFunc(v, func(r rune) bool { return r >= '0' && r <= '9' })
}

func (h *Handlers) addPackage(ctx context.Context, req *mcp.CallToolRequest, args addPackageArgs) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(args.Name) == "" {
		return textResult("name must not be empty", true), nil, nil
	}
	if !validVersionSpec(args.VersionSpec) {
		return textResult("version_spec must be \"latest\" or contain a version number", true), nil, nil
	}

	enabled := true
	if args.Enabled != nil {
		enabled = *args.Enabled
	}
	cfg, err := h.Store.UpsertConfig(ctx, store.PackageConfig{
		Name:         args.Name,
		VersionSpec:  args.VersionSpec,
		Features:     args.Features,
		ExpectedDocs: args.ExpectedDocs,
		Enabled:      enabled,
	})
	if err != nil {
		return textResult(fmt.Sprintf("failed to save package config: %v", err), true), nil, nil
	}

	go h.runIngestAsync(cfg)

	return textResult("Ingestion has started", false), nil, nil
}

func (h *Handlers) runIngestAsync(cfg store.PackageConfig) {
	ctx := context.Background()
	result, err := h.Pipeline.Ingest(ctx, cfg, h.MaxPagesAdmin)
	if err != nil {
		log.Error().Err(err).Str("package", cfg.Name).Msg("service: background ingestion failed")
		return
	}
	h.Availability.Add(cfg.Name)
	log.Info().Str("package", cfg.Name).Int("documents", result.DocumentsLoaded).Msg("service: background ingestion completed")
}

type addPackagesArgs struct {
	Packages []addPackageArgs `json:"packages" jsonschema:"required,description=List of packages to add"`
	FailFast bool             `json:"fail_fast,omitempty" jsonschema:"description=Stop on first failure"`
}

type packageOutcome struct {
	Name    string `json:"name"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

func (h *Handlers) addPackages(ctx context.Context, req *mcp.CallToolRequest, args addPackagesArgs) (*mcp.CallToolResult, any, error) {
	var outcomes []packageOutcome
	for _, pkg := range args.Packages {
		res, _, err := h.addPackage(ctx, req, pkg)
		outcome := packageOutcome{Name: pkg.Name}
		if err != nil || (res != nil && res.IsError) {
			outcome.Success = false
			if len(res.Content) > 0 {
				if tc, ok := res.Content[0].(*mcp.TextContent); ok {
					outcome.Error = tc.Text
				}
			}
			outcomes = append(outcomes, outcome)
			if args.FailFast {
				break
			}
			continue
		}
		outcome.Success = true
		outcome.Message = "Ingestion has started"
		outcomes = append(outcomes, outcome)
	}

	var b strings.Builder
	succeeded := 0
	for _, o := range outcomes {
		if o.Success {
			succeeded++
		}
	}
	fmt.Fprintf(&b, "%d/%d packages accepted for ingestion\n", succeeded, len(args.Packages))
	for _, o := range outcomes {
		if o.Success {
			fmt.Fprintf(&b, "- %s: started\n", o.Name)
		} else {
			fmt.Fprintf(&b, "- %s: failed (%s)\n", o.Name, o.Error)
		}
	}
	return textResult(b.String(), false), outcomes, nil
}

type listPackagesArgs struct {
	EnabledOnly bool `json:"enabled_only,omitempty" jsonschema:"description=Only list enabled configs"`
}

func (h *Handlers) listPackages(ctx context.Context, req *mcp.CallToolRequest, args listPackagesArgs) (*mcp.CallToolResult, any, error) {
	configs, err := h.Store.ListConfigs(ctx, args.EnabledOnly)
	if err != nil {
		return textResult(fmt.Sprintf("failed to list packages: %v", err), true), nil, nil
	}
	var b strings.Builder
	for _, c := range configs {
		fmt.Fprintf(&b, "%s@%s enabled=%v current=%s\n", c.Name, c.VersionSpec, c.Enabled, c.CurrentVersion)
	}
	return textResult(b.String(), false), configs, nil
}

type checkStatusArgs struct {
	Name string `json:"name" jsonschema:"required,description=Package name"`
}

type statusResult struct {
	Name          string `json:"name"`
	Available     bool   `json:"available"`
	DocumentCount int    `json:"document_count"`
}

func (h *Handlers) checkStatus(ctx context.Context, req *mcp.CallToolRequest, args checkStatusArgs) (*mcp.CallToolResult, any, error) {
	has, err := h.Store.HasEmbeddings(ctx, args.Name)
	if err != nil {
		return textResult(fmt.Sprintf("status check failed: %v", err), true), nil, nil
	}
	count, err := h.Store.CountDocuments(ctx, args.Name)
	if err != nil {
		return textResult(fmt.Sprintf("status check failed: %v", err), true), nil, nil
	}
	status := statusResult{Name: args.Name, Available: has, DocumentCount: count}
	return textResult(fmt.Sprintf("%s: available=%v documents=%d", status.Name, status.Available, status.DocumentCount), false), status, nil
}

type removePackageArgs struct {
	Name        string `json:"name" jsonschema:"required,description=Package name"`
	VersionSpec string `json:"version_spec,omitempty" jsonschema:"description=Version spec to remove; defaults to 'latest'"`
}

func (h *Handlers) removePackage(ctx context.Context, req *mcp.CallToolRequest, args removePackageArgs) (*mcp.CallToolResult, any, error) {
	versionSpec := args.VersionSpec
	if versionSpec == "" {
		versionSpec = "latest"
	}
	deleted, err := h.Store.DeleteConfig(ctx, args.Name, versionSpec)
	if err != nil {
		return textResult(fmt.Sprintf("failed to remove package: %v", err), true), nil, nil
	}
	if deleted {
		h.Availability.Remove(args.Name)
		return textResult(fmt.Sprintf("removed %s@%s", args.Name, versionSpec), false), nil, nil
	}
	return textResult(fmt.Sprintf("no config found for %s@%s", args.Name, versionSpec), true), nil, nil
}

func textResult(text string, isError bool) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: isError,
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}
