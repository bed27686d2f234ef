package sqlinline

const QFailStaleJobs = `--sql ac2599cc-967b-485e-9f64-d499f4af7382
update jobs
set status = 'failed',
    error_kind = 'backend_timeout',
    error = 'job was abandoned by a stopped gateway instance',
    updated_at = now()
where status in ('queued', 'running')
  and updated_at < $1::timestamptz;
`

const QDeleteStalePendingCharacters = `--sql 84e8e53f-0c3c-4414-8b88-46da6c01eab6
delete from characters
where status = 'pending'
  and created_at < $1::timestamptz;
`
