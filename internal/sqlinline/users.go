package sqlinline

const userColumns = `id, username, display_name, profile_picture_url, follower_count, following_count, verified, created_at`

const QUpsertUser = `--sql 2aa372c4-2e37-47fe-8085-a77f6a7319da
insert into users (id, username, display_name, profile_picture_url, follower_count, following_count, verified, created_at)
values ($1::text, $2::text, $3::text, $4::text, $5::bigint, $6::bigint, $7::boolean, coalesce($8::timestamptz, now()))
on conflict (id) do update set
    username = excluded.username,
    display_name = excluded.display_name,
    profile_picture_url = excluded.profile_picture_url,
    follower_count = excluded.follower_count,
    following_count = excluded.following_count,
    verified = excluded.verified
returning ` + userColumns + `;
`

const QSelectUserByID = `--sql 19cf0f02-0bbb-497b-af70-aa4033570322
select ` + userColumns + `
from users
where id = $1::text;
`

const QSelectUserByUsername = `--sql 0396938b-eaa9-4774-bcf8-d07fe9287093
select ` + userColumns + `
from users
where lower(username) = lower($1::text);
`

const QSearchUsers = `--sql 4ee4700e-4c6f-46a7-b8ed-bc73fdce1447
select ` + userColumns + `
from users
where strpos(lower(username), lower($1::text)) > 0 or strpos(lower(display_name), lower($1::text)) > 0
order by username
limit $2;
`

const QInsertAPIToken = `--sql d3cc439f-c3a4-4794-b2d9-e5e3605d96e8
insert into api_tokens (id, name, user_id, key_hash, created_at)
values (coalesce(nullif($1::bigint, 0), nextval('api_tokens_id_seq')), $2::text, $3::text, $4::text, now())
returning id;
`

const QSelectAPITokenByID = `--sql 6ff5095e-0a8c-45f9-a3dc-91fdbaadf4d6
select id, name, user_id, key_hash
from api_tokens
where id = $1::bigint;
`

const QSelectAPITokenByHash = `--sql 62df1c5a-a666-4c77-8371-454afab56787
select id, name, user_id, key_hash
from api_tokens
where key_hash = $1::text;
`
