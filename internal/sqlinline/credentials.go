package sqlinline

const QSelectProviderKey = `--sql 3f1b7c2e-9a64-4d0e-b8f5-6c2a1d7e4b90
select api_key
from provider_credentials
where provider = $1::text;
`

const QUpsertProviderKey = `--sql c7e2a9d4-51b8-4f3a-9e06-2d8b7f1c5a63
insert into provider_credentials (provider, api_key, properties, created_at, updated_at)
values ($1::text, $2::text, coalesce($3::jsonb, '{}'::jsonb), now(), now())
on conflict (provider) do update set
    api_key = excluded.api_key,
    properties = provider_credentials.properties || excluded.properties,
    updated_at = now();
`
