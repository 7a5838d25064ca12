package visualizer

import (
	"bytes"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/athapong/stix2graph/pkg/graph"
	"github.com/pkg/errors"
)

// d3Template draws the graph with a force layout. Indexed records are large
// circles, embedded entities small ones; clicking a node shows its
// properties.
const d3Template = `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>{{.Title}}</title>
    <script src="https://d3js.org/d3.v7.min.js"></script>
    <style>
        body { margin: 0; font-family: Arial, sans-serif; display: flex; }
        #graph { flex: 1; height: 100vh; background-color: #fafafa; }
        #sidebar {
            width: 320px;
            height: 100vh;
            overflow-y: auto;
            padding: 12px;
            box-sizing: border-box;
            border-left: 1px solid #ddd;
            font-size: 12px;
        }
        #sidebar select { width: 100%; margin-bottom: 8px; }
        #details table { border-collapse: collapse; width: 100%; }
        #details td { border-bottom: 1px solid #eee; padding: 2px 4px; vertical-align: top; word-break: break-all; }
        .node { stroke: #fff; stroke-width: 1.5px; cursor: pointer; }
        .node.embedded { stroke-dasharray: 2,1; }
        .link { stroke: #999; stroke-opacity: 0.6; }
        .node-label { font-size: 10px; pointer-events: none; }
    </style>
</head>
<body>
    <div id="graph"></div>
    <div id="sidebar">
        <h3>{{.Title}}</h3>
        <p>Nodes: {{.NodeCount}}, Edges: {{.EdgeCount}}</p>
        <label for="label-filter">Label</label>
        <select id="label-filter"><option value="">All labels</option></select>
        <label for="type-filter">Relationship type</label>
        <select id="type-filter"><option value="">All types</option></select>
        <div id="details"><p>Click a node to see its properties.</p></div>
    </div>

    <script>
        const graphData = {{.GraphData}};
        const width = document.getElementById("graph").clientWidth;
        const height = window.innerHeight;

        const color = d3.scaleOrdinal(d3.schemeTableau10).domain(graphData.labels);

        const svg = d3.select("#graph").append("svg")
            .attr("width", "100%")
            .attr("height", "100%");
        svg.append("defs").append("marker")
            .attr("id", "arrow")
            .attr("viewBox", "0 -4 8 8")
            .attr("refX", 16)
            .attr("markerWidth", 6)
            .attr("markerHeight", 6)
            .attr("orient", "auto")
            .append("path")
            .attr("d", "M0,-4L8,0L0,4")
            .attr("fill", "#999");
        const g = svg.append("g");
        svg.call(d3.zoom().on("zoom", event => g.attr("transform", event.transform)));

        const simulation = d3.forceSimulation(graphData.nodes)
            .force("link", d3.forceLink(graphData.edges).id(d => d.id).distance(d => d.target.embedded ? 40 : 120))
            .force("charge", d3.forceManyBody().strength(-200))
            .force("center", d3.forceCenter(width / 2, height / 2));

        const link = g.append("g").selectAll("line")
            .data(graphData.edges)
            .join("line")
            .attr("class", "link")
            .attr("marker-end", "url(#arrow)");
        link.append("title").text(d => d.type);

        const node = g.append("g").selectAll("circle")
            .data(graphData.nodes)
            .join("circle")
            .attr("class", d => d.embedded ? "node embedded" : "node")
            .attr("r", d => d.embedded ? 5 : 9)
            .attr("fill", d => color(d.type))
            .on("click", (event, d) => showDetails(d))
            .call(d3.drag()
                .on("start", (event, d) => {
                    if (!event.active) simulation.alphaTarget(0.3).restart();
                    d.fx = d.x;
                    d.fy = d.y;
                })
                .on("drag", (event, d) => {
                    d.fx = event.x;
                    d.fy = event.y;
                })
                .on("end", (event, d) => {
                    if (!event.active) simulation.alphaTarget(0);
                    d.fx = null;
                    d.fy = null;
                }));
        node.append("title").text(d => d.type);

        const caption = g.append("g").selectAll("text")
            .data(graphData.nodes.filter(d => !d.embedded))
            .join("text")
            .attr("class", "node-label")
            .attr("dx", 12)
            .attr("dy", ".35em")
            .text(d => d.label);

        simulation.on("tick", () => {
            link.attr("x1", d => d.source.x).attr("y1", d => d.source.y)
                .attr("x2", d => d.target.x).attr("y2", d => d.target.y);
            node.attr("cx", d => d.x).attr("cy", d => d.y);
            caption.attr("x", d => d.x).attr("y", d => d.y);
        });

        graphData.labels.forEach(l => d3.select("#label-filter").append("option").attr("value", l).text(l));
        [...new Set(graphData.edges.map(e => e.type))].sort()
            .forEach(t => d3.select("#type-filter").append("option").attr("value", t).text(t));

        function applyFilters() {
            const label = d3.select("#label-filter").property("value");
            const type = d3.select("#type-filter").property("value");
            const shown = d => !label || d.type === label;
            node.style("display", d => shown(d) ? null : "none");
            caption.style("display", d => shown(d) ? null : "none");
            link.style("display", d =>
                (!type || d.type === type) && (shown(d.source) || shown(d.target)) ? null : "none");
        }
        d3.selectAll("#label-filter, #type-filter").on("change", applyFilters);

        function showDetails(d) {
            const details = d3.select("#details").html("");
            details.append("h4").text(d.label + " (" + d.type + ")");
            const rows = details.append("table").selectAll("tr")
                .data(Object.entries(d.properties || {}).sort())
                .join("tr");
            rows.append("td").text(([k]) => k);
            rows.append("td").text(([, v]) => Array.isArray(v) ? v.join(", ") : v);
        }
    </script>
</body>
</html>
`

// D3Visualizer renders graph snapshots as a standalone D3.js HTML page.
type D3Visualizer struct {
	outputPath string
	title      string
	tmpl       *template.Template
}

type d3Node struct {
	ID         graph.NodeRef          `json:"id"`
	Label      string                 `json:"label"`
	Type       string                 `json:"type"`
	Embedded   bool                   `json:"embedded"`
	Properties map[string]interface{} `json:"properties"`
}

type d3Edge struct {
	Source graph.NodeRef `json:"source"`
	Target graph.NodeRef `json:"target"`
	Type   string        `json:"type"`
}

type d3Graph struct {
	Nodes  []d3Node `json:"nodes"`
	Edges  []d3Edge `json:"edges"`
	Labels []string `json:"labels"`
}

// NewD3Visualizer creates a new D3.js visualizer writing to outputPath.
func NewD3Visualizer(outputPath string) *D3Visualizer {
	return &D3Visualizer{
		outputPath: outputPath,
		title:      "STIX Graph",
		tmpl:       template.Must(template.New("d3").Parse(d3Template)),
	}
}

// Visualize writes the HTML page for data to the output path.
func (v *D3Visualizer) Visualize(data *graph.KnowledgeGraphData) error {
	dir := filepath.Dir(v.outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "create %s", dir)
	}

	var buf bytes.Buffer
	if err := v.Render(&buf, data); err != nil {
		return err
	}
	return errors.Wrapf(os.WriteFile(v.outputPath, buf.Bytes(), 0644), "write %s", v.outputPath)
}

// Render writes the HTML page for data to w.
func (v *D3Visualizer) Render(w io.Writer, data *graph.KnowledgeGraphData) error {
	view := viewOf(data)
	err := v.tmpl.Execute(w, struct {
		Title     string
		GraphData d3Graph
		NodeCount int
		EdgeCount int
	}{
		Title:     v.title,
		GraphData: view,
		NodeCount: len(view.Nodes),
		EdgeCount: len(view.Edges),
	})
	return errors.Wrap(err, "render graph")
}

// viewOf flattens a snapshot into what the page draws. Indexed records are
// captioned with their name when they have one, embedded entities with
// their label.
func viewOf(data *graph.KnowledgeGraphData) d3Graph {
	indexed := make(map[graph.NodeRef]bool, len(data.Index))
	for _, entry := range data.Index {
		indexed[entry.Node] = true
	}

	view := d3Graph{
		Nodes:  make([]d3Node, 0, len(data.Nodes)),
		Edges:  make([]d3Edge, 0, len(data.Edges)),
		Labels: make([]string, 0),
	}
	labels := make(map[string]bool)
	for _, n := range data.Nodes {
		caption := n.Label
		if name, ok := n.Properties["name"].(string); ok && name != "" {
			caption = name
		} else if id, ok := n.Properties["id"].(string); ok && id != "" {
			caption = id
		}
		view.Nodes = append(view.Nodes, d3Node{
			ID:         n.ID,
			Label:      caption,
			Type:       n.Label,
			Embedded:   !indexed[n.ID],
			Properties: n.Properties,
		})
		if !labels[n.Label] {
			labels[n.Label] = true
			view.Labels = append(view.Labels, n.Label)
		}
	}
	for _, e := range data.Edges {
		view.Edges = append(view.Edges, d3Edge{Source: e.Source, Target: e.Target, Type: e.Type})
	}
	sort.Strings(view.Labels)
	return view
}
