package sqlinline

const QInsertJob = `--sql 8723912c-e63b-49f1-8e0a-5ab9cb381ceb
insert into jobs (id, kind, model, status, user_id, token_id, result, error_kind, error, created_at, updated_at)
values ($1::text, $2::text, $3::text, $4::text, $5::text, $6::bigint, $7::jsonb, $8::text, $9::text, $10::timestamptz, $11::timestamptz);
`

const QUpdateJob = `--sql fd8ad7bf-ec5c-492d-8b47-3da02a4d7223
update jobs
set status = $2::text,
    result = $3::jsonb,
    error_kind = $4::text,
    error = $5::text,
    updated_at = $6::timestamptz
where id = $1::text;
`

const QSelectJob = `--sql e020261d-db40-46a2-8aa9-403b725df88d
select id, kind, model, status, user_id, token_id, result, error_kind, error, created_at, updated_at
from jobs
where id = $1::text;
`
