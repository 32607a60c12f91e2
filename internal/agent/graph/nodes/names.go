package nodes

const (
	NodeRouter        = "router"
	NodeRetrieval     = "retrieval"
	NodeWebSearch     = "web_search"
	NodeAnswer        = "answer"
	NodeFetchSchema   = "fetch_schema"
	NodeGenerateQuery = "generate_query"
	NodeExecuteQuery  = "execute_query"
	NodeQueryAnswer   = "sql_answer"
	NodeQueryApology  = "sql_apology"
	NodeFinalize      = "finalize"
)
