package constants

// Redis Key 前缀和格式常量
// 使用统一的命名规范: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "app"

	// SessionModulePrefix 会话作用域
	SessionModulePrefix = "session"

	// KeySessionEntry 会话作用域中的一条持久化数据 (STRING, 滑动过期)
	// 格式: app:session:{workspaceID}:{entryKey}
	KeySessionEntry = AppPrefix + ":" + SessionModulePrefix + ":%s:%s"
)

// 本地持久化数据的键名。它们与前端原有 localStorage / sessionStorage 的键保持一致。
const (
	// EntrySearchCache 搜索结果缓存 (持久作用域)
	EntrySearchCache = "searchCache"
	// EntrySavedProfiles 收藏的候选人 (持久作用域)
	EntrySavedProfiles = "savedProfiles"
	// EntryInterviewQuestions 按候选人保存的面试题 (持久作用域)
	EntryInterviewQuestions = "interviewQuestions"
	// EntryTranscriptPrefix 转写缓存，后接 meetingId (会话作用域)
	EntryTranscriptPrefix = "transcript_data_"
)

// 领域事件路由键
const (
	EventInterviewScheduled = "interview.scheduled"
	EventSearchDeleted      = "search.deleted"
	EventTranscriptArchived = "transcript.archived"
)

// DefaultWorkspace 未携带 X-Session-ID 时使用的工作区
const DefaultWorkspace = "default"
