package sqlinline

const characterColumns = `cameo_id, owner_id, username, display_name, token, source_video_ref,
       ts_start, ts_end, status, created_at, updated_at`

const QInsertCharacter = `--sql 301209e2-219e-4a0a-96d4-601300fbe0ea
insert into characters (cameo_id, owner_id, username, display_name, token, source_video_ref,
                        ts_start, ts_end, status, created_at, updated_at)
values ($1::text, $2::text, $3::text, $4::text, $5::text, $6::text,
        $7::float8, $8::float8, $9::text, now(), now())
returning created_at, updated_at;
`

const QActivateCharacter = `--sql b957786e-fd8d-4020-bbf5-5ef70400fbb6
update characters
set status = 'active',
    source_video_ref = $2::text,
    updated_at = now()
where cameo_id = $1::text
returning ` + characterColumns + `;
`

const QDeleteCharacter = `--sql 0de0c262-4501-43a7-b419-0840a3848fc0
delete from characters
where cameo_id = $1::text;
`

const QSelectCharacterByUsername = `--sql f7fb8331-cad8-4bdd-904a-0df1b2cf3af5
select ` + characterColumns + `
from characters
where lower(username) = lower($1::text);
`

const QUpdateCharacterDisplayName = `--sql 16a651eb-46d4-4e10-872d-8d9d400156a7
update characters
set display_name = $2::text,
    updated_at = now()
where cameo_id = $1::text
returning ` + characterColumns + `;
`

const QSearchCharacters = `--sql 7416dbfc-b137-499f-a7c6-67bb0181d479
select ` + characterColumns + `
from characters
where status = 'active'
  and (strpos(lower(username), lower($1::text)) > 0 or strpos(lower(display_name), lower($1::text)) > 0)
order by username
limit $2;
`

const QOwnerHasActiveCharacter = `--sql 2e0b2ae2-75f2-4ee2-a4a0-6830afbf9bc6
select exists (
    select 1 from characters where owner_id = $1::text and status = 'active'
);
`
