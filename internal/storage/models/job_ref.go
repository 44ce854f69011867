package models

// JobRef 投递对岗位的引用：要么只有 ID（未解析），要么已经携带岗位实体（已解析）
type JobRef struct {
	id  string
	job *Job
}

// UnresolvedJob 仅持有岗位 ID 的引用
func UnresolvedJob(jobID string) JobRef {
	return JobRef{id: jobID}
}

// ResolvedJob 已携带岗位实体的引用
func ResolvedJob(job *Job) JobRef {
	if job == nil {
		return JobRef{}
	}
	return JobRef{id: job.JobID, job: job}
}

// ID 返回岗位 ID，无论是否已解析
func (r JobRef) ID() string {
	return r.id
}

// Job 返回岗位实体，未解析时 ok 为 false
func (r JobRef) Job() (job *Job, ok bool) {
	return r.job, r.job != nil
}

// IsResolved 是否已携带岗位实体
func (r JobRef) IsResolved() bool {
	return r.job != nil
}
