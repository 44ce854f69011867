package constants

// Redis Key 前缀和格式常量
// 使用统一的命名规范: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "app"

	// JobModulePrefix 岗位模块
	JobModulePrefix = "job"
	// InterviewModulePrefix 面试模块
	InterviewModulePrefix = "interview"

	// EntityMeta 岗位元数据实体
	EntityMeta = "meta"
	// EntityLock 分布式锁实体
	EntityLock = "lock"
	// EntityViolations 监考违规计数实体
	EntityViolations = "violations"
	// EntityTranscript 对话断点实体
	EntityTranscript = "transcript"

	// KeyJobMeta 岗位标题/公司缓存 (STRING, JSON)
	// 格式: app:job:meta:{jobID}
	KeyJobMeta = AppPrefix + ":" + JobModulePrefix + ":" + EntityMeta + ":%s"

	// KeyJobBulkLock 批量状态流转的分布式锁 (STRING)
	// 格式: app:job:lock:{jobID}
	KeyJobBulkLock = AppPrefix + ":" + JobModulePrefix + ":" + EntityLock + ":%s"

	// KeyInterviewViolations 单场面试的违规计数 (STRING, INCR)
	// 格式: app:interview:violations:{applicationID}
	KeyInterviewViolations = AppPrefix + ":" + InterviewModulePrefix + ":" + EntityViolations + ":%s"

	// KeyInterviewTranscript 单场面试的对话断点 (LIST)
	// 格式: app:interview:transcript:{applicationID}
	KeyInterviewTranscript = AppPrefix + ":" + InterviewModulePrefix + ":" + EntityTranscript + ":%s"
)
