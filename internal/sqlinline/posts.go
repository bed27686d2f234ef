package sqlinline

// QInsertPost serializes writers on an advisory lock so sequence order,
// commit order and created_at order agree.
const QInsertPost = `--sql 091d7826-2297-47cf-868c-bcab6870d03c
with writer as (
    select pg_advisory_xact_lock(7340021)
),
slot as (
    select nextval('posts_seq') as n,
           greatest(clock_timestamp(), coalesce((select max(created_at) from posts), 'epoch'::timestamptz)) as ts
    from writer
)
insert into posts (id, text, author_id, author_username, author_display_name, token_id,
                   like_count, view_count, remix_count, attachments, remix_target_id, score, created_at)
select 's_' || lpad(to_hex(slot.n), 16, '0'),
       $1::text, $2::text, $3::text, $4::text, $5::bigint,
       $6::bigint, $7::bigint, 0, $8::jsonb, $9::text,
       floor(extract(epoch from slot.ts)) + $10::float8 * ln(1 + greatest($6::bigint, 0)) + $11::float8 * ln(1 + greatest($7::bigint, 0)),
       slot.ts
from slot
returning id, text, author_id, author_username, author_display_name, token_id,
          like_count, view_count, remix_count, attachments, remix_target_id, score, created_at;
`

const QListPostsLatest = `--sql fc6ee3a7-82a5-4647-a038-c6f255d37c92
select id, text, author_id, author_username, author_display_name, token_id,
       like_count, view_count, remix_count, attachments, remix_target_id, score, created_at
from posts
where ($1::text = '' or id <= $1::text)
  and ($2::text = '' or author_id = $2::text)
  and ($3::bigint = 0 or token_id = $3::bigint)
  and (not $4::boolean or (created_at, id) < ($5::timestamptz, $6::text))
order by created_at desc, id desc
limit $7;
`

const QListPostsTop = `--sql 8ba3ce57-62aa-4180-ab4b-c15ffbe7c078
select id, text, author_id, author_username, author_display_name, token_id,
       like_count, view_count, remix_count, attachments, remix_target_id, score, created_at
from posts
where ($1::text = '' or id <= $1::text)
  and ($2::text = '' or author_id = $2::text)
  and ($3::bigint = 0 or token_id = $3::bigint)
  and (not $4::boolean or (score, id) < ($5::float8, $6::text))
order by score desc, id desc
limit $7;
`

const QPostHighWater = `--sql 4528c5ac-1d1c-444b-ad51-62c5f92749bc
select coalesce(max(id), '')
from posts;
`

const QIncrementRemixCount = `--sql bc59f7d7-f0b1-4376-ba49-bf6933ed8b33
update posts
set remix_count = remix_count + 1
where id = $1::text;
`

const QPostStats = `--sql bd63e57e-68bc-46ac-83ef-3ca33654b2cd
select count(*), coalesce(sum(like_count), 0)::bigint
from posts
where author_id = $1::text;
`
