package sqlinline

const QInsertSavedFace = `--sql b9358ea9-e0d3-4129-8145-d022da87480b
insert into saved_faces(id, owner_id, image_ref, created_at)
values ($1::uuid, $2::text, $3::text, $4::timestamptz);
`

const QSelectSavedFace = `--sql 949ecd2e-e6ef-45e9-8236-ec0bc654bf97
select id::text, owner_id, image_ref, created_at
from saved_faces
where id = $1::uuid and owner_id = $2::text
limit 1;
`

const QListSavedFaces = `--sql 1bbdb89f-e80c-4d65-8c16-dee6dd1add9a
select id::text, owner_id, image_ref, created_at
from saved_faces
where owner_id = $1::text
order by created_at desc;
`

const QDeleteSavedFace = `--sql 0f9a873e-84f7-40fc-aa51-f9e64421d0a4
delete from saved_faces
where id = $1::uuid and owner_id = $2::text
returning id::text, owner_id, image_ref, created_at;
`
