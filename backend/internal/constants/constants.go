package constants

// Relationship types
const (
	// RelLinksTo is the default relationship for parent to chunk links
	RelLinksTo = "LINKS_TO"
	// RelSimilarTo links nodes whose texts are close in embedding space
	RelSimilarTo = "SIMILAR_TO"
	// RelContains links a document to its sections
	RelContains = "CONTAINS"
	// RelNext chains sibling chunks in reading order
	RelNext = "NEXT"
)

// Node labels
const (
	LabelChunk    = "Chunk"
	LabelDocument = "Document"
	LabelSection  = "Section"
)

// Node and edge property keys
const (
	PropID          = "id"
	PropText        = "text"
	PropEmbedding   = "embedding"
	PropLastIndexed = "last_indexed"
	PropSimilarity  = "similarity"

	PropTitle           = "title"
	PropSummary         = "summary"
	PropTopics          = "topics"
	PropSource          = "source"
	PropCombinedSummary = "combined_summary"
	PropSectionIDs      = "section_ids"
)

// LastIndexedLayout is the timestamp format written to last_indexed
const LastIndexedLayout = "2006-01-02 15:04:05"

// Vector index constants
const (
	// DefaultIndexName is used when neither an index name nor a label is given
	DefaultIndexName = "vector"
	// PlaceholderText seeds a freshly created index so it can be attached
	PlaceholderText = " "
	// DefaultSearchK is the number of neighbors requested per search
	DefaultSearchK = 5
	// DefaultFuzzyMaxNodes bounds fuzzy similarity linking
	DefaultFuzzyMaxNodes = 10
	// DefaultDocumentMatchThreshold is used when looking a document up by text
	DefaultDocumentMatchThreshold = 0.9
	// DegenerateScore marks a neighbor that is the query itself
	DegenerateScore = 1.0
)

// Parent linking strategies for the save-and-link pipeline
const (
	ParentLinkingFirstOnly = "first_only"
	ParentLinkingAll       = "all"
)
